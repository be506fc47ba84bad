package depscan

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	npm "github.com/aquasecurity/go-npm-version/pkg"
	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/google/osv-scanner/pkg/models"
)

type orderedVersion[T any] interface {
	Compare(T) int
}

// bounds are the boundaries collected from an OSV range's events. The last
// event of each kind wins.
type bounds struct {
	introduced   string
	fixed        string
	lastAffected string
}

func collectBounds(events []models.Event) bounds {
	var b bounds
	for _, e := range events {
		if e.Introduced != "" {
			b.introduced = e.Introduced
		}
		if e.Fixed != "" {
			b.fixed = e.Fixed
		}
		if e.LastAffected != "" {
			b.lastAffected = e.LastAffected
		}
	}
	return b
}

// complete reports whether both a lower and an upper bound are known.
// Ranges missing either are treated as not affecting anything.
func (b bounds) complete() bool {
	return b.introduced != "" && (b.fixed != "" || b.lastAffected != "")
}

// IsVersionAffected reports whether version falls inside any range or the
// explicit version list of affected.
func IsVersionAffected(version string, affected models.Affected) bool {
	for _, v := range affected.Versions {
		if v == version {
			return true
		}
	}

	ecosystem := strings.ToLower(string(affected.Package.Ecosystem))
	for _, r := range affected.Ranges {
		if r.Type != models.RangeEcosystem && r.Type != models.RangeSemVer {
			continue
		}
		if inRange(version, collectBounds(r.Events), ecosystem) {
			return true
		}
	}
	return false
}

// IsVersionAffectedAny checks every affected entry.
func IsVersionAffectedAny(version string, all []models.Affected) bool {
	for _, a := range all {
		if IsVersionAffected(version, a) {
			return true
		}
	}
	return false
}

func inRange(version string, b bounds, ecosystem string) bool {
	if !b.complete() {
		return false
	}

	var (
		affected bool
		ok       bool
	)
	switch ecosystem {
	case "npm":
		affected, ok = within(npm.NewVersion, version, b)
	case "pypi":
		affected, ok = within(pep440.Parse, version, b)
	default:
		affected, ok = within(semver.NewVersion, version, b)
	}
	if !ok {
		return withinLexical(version, b)
	}
	return affected
}

// within compares version against b using parse. ok is false when version
// itself cannot be parsed; unparseable boundaries are ignored.
func within[T orderedVersion[T]](parse func(string) (T, error), version string, b bounds) (affected, ok bool) {
	v, err := parse(version)
	if err != nil {
		return false, false
	}

	if b.introduced != "0" {
		if lower, err := parse(b.introduced); err == nil && v.Compare(lower) < 0 {
			return false, true
		}
	}
	if b.fixed != "" {
		if upper, err := parse(b.fixed); err == nil && v.Compare(upper) >= 0 {
			return false, true
		}
	}
	if b.lastAffected != "" {
		if last, err := parse(b.lastAffected); err == nil && v.Compare(last) > 0 {
			return false, true
		}
	}
	return true, true
}

func withinLexical(version string, b bounds) bool {
	if b.introduced != "0" && version < b.introduced {
		return false
	}
	if b.fixed != "" && version >= b.fixed {
		return false
	}
	if b.lastAffected != "" && version > b.lastAffected {
		return false
	}
	return true
}

// FixedVersions returns the fix versions of ranges containing version, or
// every known fix version when none matches.
func FixedVersions(version string, all []models.Affected) []string {
	var candidates []string
	seen := make(map[string]bool)
	for _, a := range all {
		ecosystem := strings.ToLower(string(a.Package.Ecosystem))
		for _, r := range a.Ranges {
			b := collectBounds(r.Events)
			if b.fixed == "" {
				continue
			}
			if inRange(version, b, ecosystem) {
				return []string{b.fixed}
			}
			if !seen[b.fixed] {
				seen[b.fixed] = true
				candidates = append(candidates, b.fixed)
			}
		}
	}
	return candidates
}
