package enrich

import "context"

// StylometryClient flags text whose writing style suggests fabricated
// authorship.
type StylometryClient struct {
	client *capabilityClient
	url    string
}

func NewStylometryClient(client *capabilityClient, url string) *StylometryClient {
	return &StylometryClient{client: client, url: url}
}

type stylometryRequest struct {
	Text string `json:"text"`
}

type stylometryResponse struct {
	IsFake bool `json:"is_fake"`
}

func (c *StylometryClient) Check(ctx context.Context, text string) (bool, error) {
	var resp stylometryResponse
	if err := c.client.postJSON(ctx, c.url, stylometryRequest{Text: text}, &resp); err != nil {
		return false, err
	}
	return resp.IsFake, nil
}
