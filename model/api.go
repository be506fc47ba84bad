// Package model - API request types and their validation
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RepoIDPattern constrains repository identifiers to filesystem-safe names.
var RepoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidRepoID is returned when a repository identifier is malformed.
var ErrInvalidRepoID = errors.New("invalid repo_id: use letters, numbers, underscores, or hyphens")

// ErrInvalidRequest wraps any other request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()
	_ = apiValidate.RegisterValidation("repoid", func(fl validator.FieldLevel) bool {
		return RepoIDPattern.MatchString(fl.Field().String())
	})
}

// RepoUpload is the body of POST /upload_repo.
type RepoUpload struct {
	RepoID        string `json:"repo_id" validate:"required,repoid"`
	RepoURL       string `json:"repo_url,omitempty" validate:"omitempty,url"`
	ZipFileBase64 string `json:"zip_file_base64,omitempty" validate:"omitempty,base64"`
}

// SimulateAttackRequest is the body of POST /simulate_attack.
type SimulateAttackRequest struct {
	RepoID string `json:"repo_id" validate:"required,repoid"`
	Force  bool   `json:"force"`
}

// GenerationQueryRequest is the body of POST /gemini/query.
type GenerationQueryRequest struct {
	Prompt string `json:"prompt" validate:"required,max=32768"`
}

// ValidateRepoID checks a path-supplied repository identifier.
func ValidateRepoID(repoID string) error {
	if !RepoIDPattern.MatchString(repoID) {
		return ErrInvalidRepoID
	}
	return nil
}

// Validate runs struct tag validation and maps failures onto the API error
// taxonomy.
func Validate(v interface{}) error {
	err := apiValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "repoid" {
			return ErrInvalidRepoID
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}
