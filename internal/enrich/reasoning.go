package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ReasoningClient cross-references a disaster claim against an external data
// feed, then asks the reasoning capability for a verdict over text plus feed
// data. Feed responses are cached per coordinate cell since nearby reports
// cross-reference the same events.
type ReasoningClient struct {
	client     *capabilityClient
	feedURL    string
	verdictURL string
	feedCache  *gocache.Cache
}

func NewReasoningClient(client *capabilityClient, feedURL, verdictURL string, feedTTL time.Duration) *ReasoningClient {
	if feedTTL <= 0 {
		feedTTL = 10 * time.Minute
	}
	return &ReasoningClient{
		client:     client,
		feedURL:    feedURL,
		verdictURL: verdictURL,
		feedCache:  gocache.New(feedTTL, 2*feedTTL),
	}
}

type reasoningRequest struct {
	Text string          `json:"text"`
	Data json.RawMessage `json:"data"`
}

type reasoningResponse struct {
	Verdict string `json:"verdict"`
}

func (c *ReasoningClient) Verdict(ctx context.Context, text string, lat, lon float64) (string, error) {
	feedData, err := c.fetchDisasterData(ctx, lat, lon)
	if err != nil {
		return "", fmt.Errorf("fetch disaster feed: %w", err)
	}

	var resp reasoningResponse
	if err := c.client.postJSON(ctx, c.verdictURL, reasoningRequest{Text: text, Data: feedData}, &resp); err != nil {
		return "", fmt.Errorf("reasoning verdict: %w", err)
	}
	return resp.Verdict, nil
}

func (c *ReasoningClient) fetchDisasterData(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	cacheKey := fmt.Sprintf("%.3f:%.3f", lat, lon)
	if cached, found := c.feedCache.Get(cacheKey); found {
		return cached.(json.RawMessage), nil
	}

	params := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}

	var data json.RawMessage
	if err := c.client.getJSON(ctx, c.feedURL+"?"+params.Encode(), "", &data); err != nil {
		return nil, err
	}

	c.feedCache.Set(cacheKey, data, gocache.DefaultExpiration)
	return data, nil
}
