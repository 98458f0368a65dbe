package report

import (
	"math"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want *float64
	}{
		{name: "plain value", raw: "13.0827", want: floatPtr(13.0827)},
		{name: "surrounding whitespace", raw: "  80.27 ", want: floatPtr(80.27)},
		{name: "negative", raw: "-12.5", want: floatPtr(-12.5)},
		{name: "empty", raw: "", want: nil},
		{name: "whitespace only", raw: "   ", want: nil},
		{name: "not a number", raw: "north", want: nil},
		{name: "nan", raw: "NaN", want: nil},
		{name: "infinity", raw: "+Inf", want: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ParseCoordinate(tc.raw)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("ParseCoordinate(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("ParseCoordinate(%q) = %v, want %v", tc.raw, *got, *tc.want)
			}
		})
	}
}

func TestNormalize_RejectsMissingCoordinates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  RawSubmission
	}{
		{name: "both nil", raw: RawSubmission{Text: "flooding"}},
		{name: "lat nil", raw: RawSubmission{Text: "flooding", Lon: floatPtr(80.27)}},
		{name: "lon nil", raw: RawSubmission{Text: "flooding", Lat: floatPtr(13.08)}},
		{name: "lat nan", raw: RawSubmission{Text: "flooding", Lat: floatPtr(math.NaN()), Lon: floatPtr(80.27)}},
		{name: "lon inf", raw: RawSubmission{Text: "flooding", Lat: floatPtr(13.08), Lon: floatPtr(math.Inf(1))}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Normalize(tc.raw)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if err == nil || err.Error() != "coordinates required" {
				t.Fatalf("unexpected message: %v", err)
			}
		})
	}
}

func TestNormalize_RejectsEmptyContent(t *testing.T) {
	t.Parallel()

	raw := RawSubmission{
		Lat:       floatPtr(13.08),
		Lon:       floatPtr(80.27),
		Text:      "   ",
		ImageRefs: []string{" ", ""},
	}

	_, err := Normalize(raw)
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err.Error() != "content required" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestNormalize_MediaOnlySubmissionIsValid(t *testing.T) {
	t.Parallel()

	raw := RawSubmission{
		Lat:       floatPtr(13.08),
		Lon:       floatPtr(80.27),
		VideoRefs: []string{"clip.mp4"},
	}

	sub, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if sub.Text != "" {
		t.Fatalf("unexpected text: %q", sub.Text)
	}
	if len(sub.VideoRefs) != 1 || sub.VideoRefs[0] != "clip.mp4" {
		t.Fatalf("unexpected video refs: %v", sub.VideoRefs)
	}
}

func TestNormalize_TrimsFieldsAndDropsBlankRefs(t *testing.T) {
	t.Parallel()

	raw := RawSubmission{
		HazardType: "  flood ",
		Text:       "  water rising fast  ",
		Lat:        floatPtr(13.0827),
		Lon:        floatPtr(80.2707),
		ImageRefs:  []string{" a.jpg", "", "b.jpg "},
	}

	sub, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if sub.HazardType == nil || *sub.HazardType != "flood" {
		t.Fatalf("unexpected hazard type: %v", sub.HazardType)
	}
	if sub.Text != "water rising fast" {
		t.Fatalf("unexpected text: %q", sub.Text)
	}
	if len(sub.ImageRefs) != 2 || sub.ImageRefs[0] != "a.jpg" || sub.ImageRefs[1] != "b.jpg" {
		t.Fatalf("unexpected image refs: %v", sub.ImageRefs)
	}
}

func TestNormalize_BlankHazardTypeStaysNil(t *testing.T) {
	t.Parallel()

	sub, err := Normalize(RawSubmission{
		HazardType: "   ",
		Text:       "big waves",
		Lat:        floatPtr(8.5),
		Lon:        floatPtr(76.9),
	})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if sub.HazardType != nil {
		t.Fatalf("expected nil hazard type, got %q", *sub.HazardType)
	}
}
