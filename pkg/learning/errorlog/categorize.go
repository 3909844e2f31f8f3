package errorlog

import (
	"regexp"
	"strings"

	"github.com/forgeflow/orchestrator/pkg/model"
)

// categoryRule is one entry in the ordered categorisation catalogue.
// Matching is deterministic and side-effect free (spec §4.7.1): the first
// rule whose pattern matches errorType or message wins.
type categoryRule struct {
	category model.ErrorCategory
	pattern  *regexp.Regexp
}

var categoryRules = []categoryRule{
	{model.CategoryMissingParameter, regexp.MustCompile(`(?i)required|missing (param|parameter|argument|field)`)},
	{model.CategoryInvalidParameter, regexp.MustCompile(`(?i)invalid (param|parameter|argument|value)`)},
	{model.CategoryTypeMismatch, regexp.MustCompile(`(?i)type mismatch|expected type|not assignable to|wrong type`)},
	{model.CategoryFormatInvalid, regexp.MustCompile(`(?i)invalid format|malformed|parse error|unmarshal`)},

	{model.CategoryLogicFailure, regexp.MustCompile(`(?i)logic error|assertion failed|unexpected result`)},
	{model.CategoryConditionFail, regexp.MustCompile(`(?i)condition (failed|not met)|precondition`)},
	{model.CategoryStateInvalid, regexp.MustCompile(`(?i)invalid state|unexpected state|state machine`)},
	{model.CategorySequenceError, regexp.MustCompile(`(?i)out of (order|sequence)|sequence error`)},

	{model.CategorySkillNotFound, regexp.MustCompile(`(?i)skill .* not found|unknown skill|no such skill`)},
	{model.CategorySkillTimeout, regexp.MustCompile(`(?i)skill .* timed out|skill timeout`)},
	{model.CategorySkillFailure, regexp.MustCompile(`(?i)skill .* failed|skill execution error`)},
	{model.CategorySkillOutputBad, regexp.MustCompile(`(?i)skill output (invalid|malformed)|output validation failed`)},

	{model.CategoryDependencyNotFound, regexp.MustCompile(`(?i)dependency .* not found|module not found|package not found`)},
	{model.CategoryDependencyTimeout, regexp.MustCompile(`(?i)dependency .* timed out|upstream timeout`)},
	{model.CategoryDependencyError, regexp.MustCompile(`(?i)dependency (error|failed)|upstream (error|failure)`)},

	{model.CategoryConfigMissing, regexp.MustCompile(`(?i)config(uration)? .* (missing|not set|not found)`)},
	{model.CategoryConfigInvalid, regexp.MustCompile(`(?i)config(uration)? .* invalid`)},
	{model.CategoryConfigConflict, regexp.MustCompile(`(?i)config(uration)? conflict|conflicting config`)},

	{model.CategoryMemoryError, regexp.MustCompile(`(?i)out of memory|memory (error|exhausted)|oom`)},
	{model.CategoryTimeout, regexp.MustCompile(`(?i)\btimeout\b|timed out|deadline exceeded`)},
	{model.CategoryResourceExhausted, regexp.MustCompile(`(?i)resource exhausted|too many (requests|connections|open files)`)},
}

// Categorize pattern-matches errorType and message into the closed
// taxonomy of spec §7, falling back to CategoryUnknown. Deterministic and
// side-effect free.
func Categorize(errorType, message string) model.ErrorCategory {
	subject := errorType + " " + message
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(subject) {
			return rule.category
		}
	}
	if strings.TrimSpace(subject) == "" {
		return model.CategoryUnknown
	}
	return model.CategoryUnknown
}
