package enrich

import "testing"

func TestIsHighPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		hazardType string
		text       string
		want       bool
	}{
		{name: "severe hazard type", hazardType: "tsunami", text: "calm for now", want: true},
		{name: "severe type mixed case", hazardType: "  Storm Surge ", text: "", want: true},
		{name: "urgent text", hazardType: "debris", text: "please EVACUATE the area", want: true},
		{name: "water rising", hazardType: "", text: "Water is rising fast here", want: true},
		{name: "benign report", hazardType: "debris", text: "driftwood on the beach", want: false},
		{name: "empty", hazardType: "", text: "", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsHighPriority(tc.hazardType, tc.text); got != tc.want {
				t.Fatalf("IsHighPriority(%q, %q) = %v, want %v", tc.hazardType, tc.text, got, tc.want)
			}
		})
	}
}

func TestContainsDisasterClaim(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{name: "flooding claim", text: "Flooding in the fishing harbour", want: true},
		{name: "tsunami claim", text: "people say a TSUNAMI hit", want: true},
		{name: "no claim", text: "beautiful sunset today", want: false},
		{name: "empty", text: "", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := ContainsDisasterClaim(tc.text); got != tc.want {
				t.Fatalf("ContainsDisasterClaim(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
