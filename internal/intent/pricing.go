package intent

import (
	"fmt"
	"math"
	"strings"
)

// Surcharge multipliers. They compose multiplicatively: an emergency call
// after hours pays base * 1.5 * 1.25.
const (
	emergencyMultiplier  = 1.5
	afterHoursMultiplier = 1.25
)

// Disclosure strings spoken back to the caller when a surcharge applies.
const (
	DisclosureEmergency  = "emergency service rates apply"
	DisclosureAfterHours = "after-hours rates apply"
)

// PriceBase is the catalog price range for one service category, in cents.
type PriceBase struct {
	Category string
	MinCents int64
	MaxCents int64
}

// Estimate is a price range with the surcharges that produced it.
// All amounts are rounded to whole dollars (half away from zero); this is
// the single rounding rule for every price in the system.
type Estimate struct {
	MinDollars  int64
	MaxDollars  int64
	Disclosures []string
}

// Text renders the estimate as a sentence a voice assistant can speak
// verbatim.
func (e Estimate) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The estimated cost is between $%d and $%d.", e.MinDollars, e.MaxDollars)
	for _, d := range e.Disclosures {
		b.WriteString(" Please note ")
		b.WriteString(d)
		b.WriteString(".")
	}
	return b.String()
}

// EstimatePrice computes a price range for the requested service categories.
// The range spans the cheapest minimum to the most expensive maximum across
// the matched categories; categories absent from the catalog are ignored. If
// none of the requested categories have catalog entries, ok is false and the
// caller should fall back to a generic answer rather than quote $0.
func EstimatePrice(bases []PriceBase, serviceTypes []string, emergency, afterHours bool) (Estimate, bool) {
	requested := make(map[string]bool, len(serviceTypes))
	for _, st := range serviceTypes {
		requested[st] = true
	}

	var minCents, maxCents int64
	found := false
	for _, base := range bases {
		if !requested[base.Category] {
			continue
		}
		if !found || base.MinCents < minCents {
			minCents = base.MinCents
		}
		if !found || base.MaxCents > maxCents {
			maxCents = base.MaxCents
		}
		found = true
	}
	if !found {
		return Estimate{}, false
	}

	multiplier := 1.0
	var disclosures []string
	if emergency {
		multiplier *= emergencyMultiplier
		disclosures = append(disclosures, DisclosureEmergency)
	}
	if afterHours {
		multiplier *= afterHoursMultiplier
		disclosures = append(disclosures, DisclosureAfterHours)
	}
	return Estimate{
		MinDollars:  roundToDollars(float64(minCents) * multiplier),
		MaxDollars:  roundToDollars(float64(maxCents) * multiplier),
		Disclosures: disclosures,
	}, true
}

func roundToDollars(cents float64) int64 {
	return int64(math.Round(cents / 100))
}
