package enrich

import "strings"

// Hazard categories that always qualify for the satellite check.
var severeHazardTypes = map[string]struct{}{
	"tsunami":         {},
	"cyclone":         {},
	"storm surge":     {},
	"flood":           {},
	"high waves":      {},
	"coastal erosion": {},
}

var urgentTerms = []string{
	"urgent",
	"immediately",
	"evacuate",
	"emergency",
	"rising fast",
	"trapped",
	"danger",
}

var disasterTerms = []string{
	"tsunami",
	"flood",
	"flooding",
	"inundation",
	"earthquake",
	"cyclone",
	"storm surge",
	"landslide",
	"high waves",
	"swell",
	"water rising",
}

// IsHighPriority decides whether a report warrants the satellite two-call
// sub-protocol. Severe hazard categories qualify outright; otherwise the
// free text must read as urgent.
func IsHighPriority(hazardType, text string) bool {
	if _, severe := severeHazardTypes[strings.ToLower(strings.TrimSpace(hazardType))]; severe {
		return true
	}
	lowered := strings.ToLower(text)
	for _, term := range urgentTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// ContainsDisasterClaim reports whether the text asserts a disaster event,
// which gates the cross-reference and reasoning stage.
func ContainsDisasterClaim(text string) bool {
	lowered := strings.ToLower(text)
	for _, term := range disasterTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
