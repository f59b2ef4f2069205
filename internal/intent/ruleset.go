// Package intent classifies caller transcripts into call types, emergency
// flags, and service categories, and estimates prices from the service
// catalog. Everything in this package is pure and safe for concurrent use.
package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CallType is the coarse intent of a call, resolved by an ordered rule list.
type CallType string

const (
	CallTypeEmergency          CallType = "EMERGENCY"
	CallTypeAppointmentBooking CallType = "APPOINTMENT_BOOKING"
	CallTypePriceEstimate      CallType = "PRICE_ESTIMATE"
	CallTypeServiceRequest     CallType = "SERVICE_REQUEST"
	CallTypeGeneralInquiry     CallType = "GENERAL_INQUIRY"
)

// CallTypeRule maps a call type to its trigger vocabulary. Rules are
// evaluated in slice order and the first match wins; the order is a policy
// decision, not incidental.
type CallTypeRule struct {
	Type     CallType `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// ServiceRule maps trigger keywords to a service category. Service rules are
// evaluated independently; multiple categories may match one transcript.
type ServiceRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Ruleset is the immutable keyword configuration injected into the
// classifier. Loading it as a value (rather than package state) allows
// per-tenant vocabulary overrides without touching classification control
// flow.
type Ruleset struct {
	// EmergencyKeywords groups emergency trigger phrases by hazard category.
	// Matching is substring-based and case-insensitive; any single match
	// marks the transcript as an emergency.
	EmergencyKeywords map[string][]string `yaml:"emergencyKeywords"`
	// CallTypeRules is the ordered first-match-wins rule list for non-
	// emergency call types.
	CallTypeRules []CallTypeRule `yaml:"callTypeRules"`
	// ServiceRules maps vocabulary to service categories.
	ServiceRules []ServiceRule `yaml:"serviceRules"`
	// FallbackService is applied when no service rule matches. Downstream
	// pricing depends on a non-empty service set, so this must never be "".
	FallbackService string `yaml:"fallbackService"`
}

// DefaultRuleset returns the built-in HVAC vocabulary.
func DefaultRuleset() Ruleset {
	return Ruleset{
		EmergencyKeywords: map[string][]string{
			"heating": {
				"no heat", "furnace not working", "furnace broken", "heater broken",
				"no hot water", "freezing", "carbon monoxide", "gas smell", "gas leak",
			},
			"cooling": {
				"no cooling", "ac not working", "air conditioner broken", "ac broken",
				"no air conditioning", "ac died",
			},
			"plumbing": {
				"burst pipe", "flooding", "water everywhere", "major leak", "pipe burst",
			},
			"electrical": {
				"sparks", "burning smell", "electrical fire", "smoke",
			},
			"general": {
				"emergency", "urgent", "right now", "immediately", "asap",
			},
		},
		CallTypeRules: []CallTypeRule{
			{
				Type: CallTypeAppointmentBooking,
				Keywords: []string{
					"schedule", "book", "appointment", "technician", "available",
					"come out", "visit", "when can",
				},
			},
			{
				Type: CallTypePriceEstimate,
				Keywords: []string{
					"cost", "price", "quote", "estimate", "how much", "charge",
				},
			},
			{
				Type: CallTypeServiceRequest,
				Keywords: []string{
					"repair", "fix", "broken", "not working", "maintenance",
					"tune-up", "tune up", "service",
				},
			},
		},
		ServiceRules: []ServiceRule{
			{Category: "heating", Keywords: []string{"furnace", "heater", "heating", "boiler", "no heat"}},
			{Category: "cooling", Keywords: []string{"ac", "air condition", "cooling", "a/c"}},
			{Category: "heat_pump", Keywords: []string{"heat pump"}},
			{Category: "thermostat", Keywords: []string{"thermostat"}},
			{Category: "ductwork", Keywords: []string{"duct", "vents", "airflow"}},
			{Category: "maintenance", Keywords: []string{"maintenance", "tune-up", "tune up", "inspection", "filter"}},
			{Category: "installation", Keywords: []string{"install", "replace", "new system", "new unit"}},
		},
		FallbackService: "general_hvac",
	}
}

// LoadRuleset reads a YAML ruleset override from path. An empty path returns
// the default ruleset. A loaded ruleset missing a fallback service is
// rejected rather than silently producing empty service sets.
func LoadRuleset(path string) (Ruleset, error) {
	if path == "" {
		return DefaultRuleset(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}, fmt.Errorf("read ruleset %s: %w", path, err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return Ruleset{}, fmt.Errorf("parse ruleset %s: %w", path, err)
	}

	if rs.FallbackService == "" {
		return Ruleset{}, fmt.Errorf("ruleset %s: fallbackService must not be empty", path)
	}

	return rs, nil
}
