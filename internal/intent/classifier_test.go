package intent

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultRuleset())
}

func TestClassifyEmergencyAcrossCategories(t *testing.T) {
	emergencies := []string{
		"My furnace is broken and the house is freezing",
		"There's a gas smell coming from the basement",
		"The AC died and my mother is elderly",
		"We have a burst pipe, water everywhere",
		"I see sparks coming out of the unit",
		"I need someone right now",
		"This is an EMERGENCY",
	}

	c := newTestClassifier()
	for _, text := range emergencies {
		res := c.Classify(text)
		if !res.IsEmergency {
			t.Errorf("Classify(%q).IsEmergency = false, want true", text)
		}
		if res.CallType != CallTypeEmergency {
			t.Errorf("Classify(%q).CallType = %s, want %s", text, res.CallType, CallTypeEmergency)
		}
	}
}

func TestClassifyNormalCorpusIsNotEmergency(t *testing.T) {
	normal := []string{
		"I want to schedule an appointment for next week",
		"How much does a thermostat upgrade cost?",
		"Do you do annual maintenance plans?",
		"What are your business hours?",
		"I'd like a quote for a new heat pump",
	}

	c := newTestClassifier()
	for _, text := range normal {
		if c.Classify(text).IsEmergency {
			t.Errorf("Classify(%q).IsEmergency = true, want false", text)
		}
	}
}

func TestCallTypeResolutionOrder(t *testing.T) {
	tests := []struct {
		text string
		want CallType
	}{
		{"I want to schedule an appointment", CallTypeAppointmentBooking},
		{"How much does furnace repair cost?", CallTypePriceEstimate},
		{"My thermostat display is not working", CallTypeServiceRequest},
		{"Hi, just wondering what brands you carry", CallTypeGeneralInquiry},
		// "schedule" outranks "cost": the rule list is ordered and the
		// first match wins.
		{"Can I schedule a visit and also ask what it would cost?", CallTypeAppointmentBooking},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		if got := c.Classify(tt.text).CallType; got != tt.want {
			t.Errorf("Classify(%q).CallType = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestExtractServiceTypesMultipleMatches(t *testing.T) {
	c := newTestClassifier()

	got := c.ExtractServiceTypes("The furnace and the thermostat both act up")
	want := map[string]bool{"heating": true, "thermostat": true}
	if len(got) != len(want) {
		t.Fatalf("ExtractServiceTypes returned %v, want categories %v", got, want)
	}
	for _, category := range got {
		if !want[category] {
			t.Errorf("unexpected category %q in %v", category, got)
		}
	}
}

func TestExtractServiceTypesFallbackNeverEmpty(t *testing.T) {
	c := newTestClassifier()

	got := c.ExtractServiceTypes("I have some issues with my system")
	if len(got) != 1 || got[0] != "general_hvac" {
		t.Fatalf("ExtractServiceTypes fallback = %v, want [general_hvac]", got)
	}
}

func TestLoadRulesetOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ruleset.yaml")
	content := `
emergencyKeywords:
  plumbing: ["toilet volcano"]
callTypeRules:
  - type: APPOINTMENT_BOOKING
    keywords: ["book"]
serviceRules:
  - category: plumbing
    keywords: ["toilet"]
fallbackService: general_plumbing
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadRuleset(path)
	if err != nil {
		t.Fatalf("LoadRuleset: %v", err)
	}

	c := NewClassifier(rs)
	if !c.IsEmergency("we have a TOILET VOLCANO situation") {
		t.Error("override emergency keyword did not match")
	}
	if got := c.ExtractServiceTypes("something else entirely"); got[0] != "general_plumbing" {
		t.Errorf("fallback = %v, want general_plumbing", got)
	}
}

func TestLoadRulesetRejectsEmptyFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ruleset.yaml")
	if err := os.WriteFile(path, []byte("serviceRules: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRuleset(path); err == nil {
		t.Fatal("LoadRuleset accepted a ruleset without a fallback service")
	}
}
