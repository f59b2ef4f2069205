package intent

import (
	"strings"
	"testing"
)

var testBases = []PriceBase{
	{Category: "heating", MinCents: 15000, MaxCents: 45000},
	{Category: "cooling", MinCents: 12000, MaxCents: 40000},
	{Category: "general_hvac", MinCents: 10000, MaxCents: 30000},
}

func TestEstimatePriceBaseRange(t *testing.T) {
	est, ok := EstimatePrice(testBases, []string{"heating"}, false, false)
	if !ok {
		t.Fatal("EstimatePrice returned ok=false")
	}
	if est.MinDollars != 150 || est.MaxDollars != 450 {
		t.Errorf("range = $%d-$%d, want $150-$450", est.MinDollars, est.MaxDollars)
	}
	if len(est.Disclosures) != 0 {
		t.Errorf("unexpected disclosures %v", est.Disclosures)
	}
}

func TestEstimatePriceMultipliersCompose(t *testing.T) {
	est, ok := EstimatePrice(testBases, []string{"heating"}, true, true)
	if !ok {
		t.Fatal("EstimatePrice returned ok=false")
	}

	// 150 * 1.5 * 1.25 = 281.25 -> 281; 450 * 1.5 * 1.25 = 843.75 -> 844.
	if est.MinDollars != 281 || est.MaxDollars != 844 {
		t.Errorf("range = $%d-$%d, want $281-$844", est.MinDollars, est.MaxDollars)
	}

	text := est.Text()
	if !strings.Contains(text, DisclosureEmergency) {
		t.Errorf("Text() missing emergency disclosure: %s", text)
	}
	if !strings.Contains(text, DisclosureAfterHours) {
		t.Errorf("Text() missing after-hours disclosure: %s", text)
	}
}

func TestEstimatePriceSpansCategories(t *testing.T) {
	est, ok := EstimatePrice(testBases, []string{"heating", "cooling"}, false, false)
	if !ok {
		t.Fatal("EstimatePrice returned ok=false")
	}
	if est.MinDollars != 120 || est.MaxDollars != 450 {
		t.Errorf("range = $%d-$%d, want $120-$450", est.MinDollars, est.MaxDollars)
	}
}

func TestEstimatePriceUnknownCategory(t *testing.T) {
	if _, ok := EstimatePrice(testBases, []string{"duct_cleaning"}, false, false); ok {
		t.Fatal("EstimatePrice matched a category with no catalog entry")
	}
}
