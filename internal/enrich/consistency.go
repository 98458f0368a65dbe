package enrich

import "context"

// ConsistencyClient scores whether a report's text and image describe the
// same scene.
type ConsistencyClient struct {
	client *capabilityClient
	url    string
}

func NewConsistencyClient(client *capabilityClient, url string) *ConsistencyClient {
	return &ConsistencyClient{client: client, url: url}
}

type consistencyRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type consistencyResponse struct {
	Score float64 `json:"score"`
}

func (c *ConsistencyClient) Score(ctx context.Context, text, image string) (float64, error) {
	var resp consistencyResponse
	if err := c.client.postJSON(ctx, c.url, consistencyRequest{Text: text, Image: image}, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}
