package report

import (
	"math"
	"strconv"
	"strings"
)

// RawSubmission is one incoming hazard report before normalization. Media
// refs are stable filename identifiers already resolved by the upload step;
// no storage I/O happens here.
type RawSubmission struct {
	HazardType string
	Text       string
	Lat        *float64
	Lon        *float64
	ImageRefs  []string
	VideoRefs  []string
}

// Submission is a validated, normalized hazard report ready for clustering.
type Submission struct {
	HazardType *string
	Text       string
	Lat        float64
	Lon        float64
	ImageRefs  []string
	VideoRefs  []string
}

// ParseCoordinate converts a raw form value into a coordinate. Unparsable or
// non-finite input yields nil, which Normalize reports as missing.
func ParseCoordinate(raw string) *float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

// Normalize validates the submission contract: finite coordinates, and at
// least one of non-empty text, an image ref, or a video ref.
func Normalize(raw RawSubmission) (*Submission, error) {
	if raw.Lat == nil || raw.Lon == nil ||
		math.IsNaN(*raw.Lat) || math.IsInf(*raw.Lat, 0) ||
		math.IsNaN(*raw.Lon) || math.IsInf(*raw.Lon, 0) {
		return nil, NewValidationError("coordinates required")
	}

	text := strings.TrimSpace(raw.Text)
	imageRefs := cleanRefs(raw.ImageRefs)
	videoRefs := cleanRefs(raw.VideoRefs)

	if text == "" && len(imageRefs) == 0 && len(videoRefs) == 0 {
		return nil, NewValidationError("content required")
	}

	sub := &Submission{
		Text:      text,
		Lat:       *raw.Lat,
		Lon:       *raw.Lon,
		ImageRefs: imageRefs,
		VideoRefs: videoRefs,
	}
	if hazardType := strings.TrimSpace(raw.HazardType); hazardType != "" {
		sub.HazardType = &hazardType
	}
	return sub, nil
}

func cleanRefs(refs []string) []string {
	cleaned := make([]string, 0, len(refs))
	for _, ref := range refs {
		trimmed := strings.TrimSpace(ref)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
