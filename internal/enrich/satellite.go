package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// SatelliteClient runs the two-call change-detection sub-protocol: fetch
// before/after imagery for the anchor coordinate, then submit both frames to
// the change-detection capability. Any missing image URL or failed call makes
// the whole check inconclusive.
type SatelliteClient struct {
	client          *capabilityClient
	imageryURL      string
	changeDetectURL string
	apiKey          string
	radiusMeters    int
	before          string
	after           string
}

type SatelliteOptions struct {
	ImageryURL      string
	ChangeDetectURL string
	APIKey          string
	RadiusMeters    int
	Before          string
	After           string
}

func NewSatelliteClient(client *capabilityClient, opts SatelliteOptions) *SatelliteClient {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = 1000
	}
	if opts.Before == "" {
		opts.Before = "-7d"
	}
	if opts.After == "" {
		opts.After = "now"
	}
	return &SatelliteClient{
		client:          client,
		imageryURL:      opts.ImageryURL,
		changeDetectURL: opts.ChangeDetectURL,
		apiKey:          opts.APIKey,
		radiusMeters:    opts.RadiusMeters,
		before:          opts.Before,
		after:           opts.After,
	}
}

type satelliteImageryResponse struct {
	BeforeImageURL string `json:"before_image_url"`
	AfterImageURL  string `json:"after_image_url"`
}

type changeDetectRequest struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

type changeDetectResponse struct {
	ChangeDetected bool `json:"change_detected"`
}

func (c *SatelliteClient) CheckChange(ctx context.Context, lat, lon float64) (bool, error) {
	params := url.Values{
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lon, 'f', -1, 64)},
		"radius": {strconv.Itoa(c.radiusMeters)},
		"before": {c.before},
		"after":  {c.after},
	}

	var imagery satelliteImageryResponse
	if err := c.client.getJSON(ctx, c.imageryURL+"?"+params.Encode(), c.apiKey, &imagery); err != nil {
		return false, fmt.Errorf("fetch satellite imagery: %w", err)
	}

	if imagery.BeforeImageURL == "" || imagery.AfterImageURL == "" {
		return false, fmt.Errorf("satellite imagery unavailable for %.4f, %.4f", lat, lon)
	}

	var detection changeDetectResponse
	if err := c.client.postJSON(ctx, c.changeDetectURL, changeDetectRequest{
		Before: imagery.BeforeImageURL,
		After:  imagery.AfterImageURL,
	}, &detection); err != nil {
		return false, fmt.Errorf("detect satellite change: %w", err)
	}

	return detection.ChangeDetected, nil
}
