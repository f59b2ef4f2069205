package intent

import "strings"

// Result is the outcome of classifying one transcript fragment.
type Result struct {
	IsEmergency   bool
	CallType      CallType
	ServiceTypes  []string
	MatchedPhrase string
}

// Classifier evaluates transcripts against an injected ruleset.
// The zero value is not usable; construct with NewClassifier.
type Classifier struct {
	rules Ruleset
}

// NewClassifier creates a classifier over the given ruleset. The ruleset is
// treated as immutable after this call.
func NewClassifier(rules Ruleset) *Classifier {
	return &Classifier{rules: rules}
}

// Classify maps a transcript to an emergency flag, call type, and service
// categories. Matching is substring-based and case-insensitive throughout.
func (c *Classifier) Classify(text string) Result {
	lowered := strings.ToLower(text)

	emergency, phrase := c.matchEmergency(lowered)

	return Result{
		IsEmergency:   emergency,
		CallType:      c.resolveCallType(lowered, emergency),
		ServiceTypes:  c.ExtractServiceTypes(text),
		MatchedPhrase: phrase,
	}
}

// IsEmergency reports whether the transcript contains any configured
// emergency phrase. The first match short-circuits.
func (c *Classifier) IsEmergency(text string) bool {
	matched, _ := c.matchEmergency(strings.ToLower(text))
	return matched
}

func (c *Classifier) matchEmergency(lowered string) (bool, string) {
	for _, phrases := range c.rules.EmergencyKeywords {
		for _, phrase := range phrases {
			if strings.Contains(lowered, phrase) {
				return true, phrase
			}
		}
	}
	return false, ""
}

// resolveCallType walks the ordered rule list; the first rule with a keyword
// hit wins. Emergency takes precedence over every rule, and the default is
// GENERAL_INQUIRY.
func (c *Classifier) resolveCallType(lowered string, emergency bool) CallType {
	if emergency {
		return CallTypeEmergency
	}

	for _, rule := range c.rules.CallTypeRules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				return rule.Type
			}
		}
	}

	return CallTypeGeneralInquiry
}

// ExtractServiceTypes returns every service category whose vocabulary appears
// in the transcript. The result is never empty: when nothing matches, the
// ruleset's fallback category is returned so pricing always has a base.
func (c *Classifier) ExtractServiceTypes(text string) []string {
	lowered := strings.ToLower(text)

	var matched []string
	for _, rule := range c.rules.ServiceRules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, rule.Category)
				break
			}
		}
	}

	if len(matched) == 0 {
		return []string{c.rules.FallbackService}
	}
	return matched
}

// FallbackService returns the ruleset's catch-all service category.
func (c *Classifier) FallbackService() string {
	return c.rules.FallbackService
}
