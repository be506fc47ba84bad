// Package generation implements the raw generation passthrough endpoint.
package generation

import (
	"context"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/restapi/modules/httperr"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Querier sends a prompt to the generation endpoint.
type Querier interface {
	Query(ctx context.Context, prompt string) (text, modelName string, err error)
}

// QueryResponse is the body returned by POST /gemini/query.
type QueryResponse struct {
	Text           string `json:"text"`
	Model          string `json:"model"`
	PromptLength   int    `json:"prompt_length"`
	ResponseLength int    `json:"response_length"`
}

// Query handles POST /gemini/query
func Query(q Querier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.GenerationQueryRequest
		if err := c.BodyParser(&req); err != nil {
			return httperr.BadRequest(c, "Invalid request body: "+err.Error())
		}
		if err := model.Validate(req); err != nil {
			return httperr.Respond(c, err)
		}

		text, modelName, err := q.Query(c.UserContext(), req.Prompt)
		if err != nil {
			logger.Error("Generation query failed", zap.Error(err))
			return httperr.Respond(c, err)
		}

		return c.JSON(QueryResponse{
			Text:           text,
			Model:          modelName,
			PromptLength:   len(req.Prompt),
			ResponseLength: len(text),
		})
	}
}
