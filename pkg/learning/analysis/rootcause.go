// Package analysis implements the Analysis Engine (spec §4.7.2): a
// root-cause detector over an ordered matcher catalogue, and a pattern
// recogniser that tracks recurrence and finds related patterns by
// weighted similarity.
package analysis

import (
	"regexp"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// RootCause is the result of matching an error against the catalogue.
type RootCause struct {
	Kind       string
	Evidence   float64
	Confidence float64
	Detail     string
}

type matcher struct {
	kind     string
	evidence float64
	match    func(model.ErrorLogEntry) (bool, string)
}

var fallbackConfidence = 0.3

// catalogue is ordered; the first match wins (spec §4.7.2: "the first
// match with the highest evidence score wins").
var catalogue = []matcher{
	{
		kind:     "undefined_access",
		evidence: 0.85,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return regexp.MustCompile(`(?i)undefined|null reference|nil pointer|cannot read propert`).MatchString(e.Message), "undefined/nil access in message"
		},
	},
	{
		kind:     "missing_parameter",
		evidence: 0.9,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryMissingParameter, "categorised as missing_parameter"
		},
	},
	{
		kind:     "type_error",
		evidence: 0.85,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryTypeMismatch, "categorised as type_mismatch"
		},
	},
	{
		kind:     "skill_not_found",
		evidence: 0.95,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategorySkillNotFound, "categorised as skill_not_found"
		},
	},
	{
		kind:     "timeout",
		evidence: 0.8,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryTimeout || e.Category == model.CategorySkillTimeout || e.Category == model.CategoryDependencyTimeout,
				"categorised as a timeout variant"
		},
	},
	{
		kind:     "config_missing",
		evidence: 0.85,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryConfigMissing, "categorised as config_missing"
		},
	},
	{
		kind:     "validation_failed",
		evidence: 0.8,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryInvalidParameter || e.Category == model.CategoryFormatInvalid,
				"categorised as an invalid-input variant"
		},
	},
	{
		kind:     "dependency_error",
		evidence: 0.8,
		match: func(e model.ErrorLogEntry) (bool, string) {
			return e.Category == model.CategoryDependencyError || e.Category == model.CategoryDependencyNotFound,
				"categorised as a dependency failure"
		},
	},
}

// DetectRootCause runs the ordered matcher catalogue against entry,
// returning the first hit's evidence as confidence, or a 0.3 fallback
// when nothing matches.
func DetectRootCause(entry model.ErrorLogEntry) RootCause {
	for _, m := range catalogue {
		if ok, detail := m.match(entry); ok {
			return RootCause{Kind: m.kind, Evidence: m.evidence, Confidence: m.evidence, Detail: detail}
		}
	}
	return RootCause{Kind: "unclassified", Evidence: fallbackConfidence, Confidence: fallbackConfidence, Detail: "no catalogue matcher fired"}
}
