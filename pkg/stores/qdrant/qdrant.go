/*
Package qdrant is a thin HTTP client for the parts of the Qdrant API the
memory store uses: collection bootstrap, point upserts, and filtered
vector search.
*/
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "memories"
	httpClient *http.Client
}

// New returns a Client with sane defaults.
func New(endpoint, collection string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Collection: collection,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Point is one vector plus its payload, keyed by the memory id.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Filter narrows a search to one owner and optionally one memory type.
type Filter struct {
	Owner string
	Type  string
}

// SearchHit is one search result: the point id and its similarity score.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

/*
EnsureCollection creates the collection with the given vector size if it
does not exist yet. Qdrant answers an existing collection with a
conflict, which is fine here.
*/
func (client *Client) EnsureCollection(ctx context.Context, vectorSize int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	resp, err := client.do(
		ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", client.Endpoint, client.Collection),
		body,
	)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant: create collection status %s", resp.Status)
	}

	return nil
}

// Upsert writes or replaces a single point.
func (client *Client) Upsert(ctx context.Context, point Point) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":      point.ID,
			"vector":  point.Vector,
			"payload": point.Payload,
		}},
	}

	resp, err := client.do(
		ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points", client.Endpoint, client.Collection),
		body,
	)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: upsert status %s", resp.Status)
	}

	return nil
}

// Delete removes a point by id.
func (client *Client) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}

	resp, err := client.do(
		ctx, http.MethodPost,
		fmt.Sprintf(
			"%s/collections/%s/points/delete",
			client.Endpoint, client.Collection,
		),
		body,
	)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: delete status %s", resp.Status)
	}

	return nil
}

// Search runs a filtered vector search and returns the top hits.
func (client *Client) Search(
	ctx context.Context, queryVec []float32, limit int, filter Filter,
) ([]SearchHit, error) {
	must := []map[string]any{{
		"key":   "owner",
		"match": map[string]any{"value": filter.Owner},
	}}

	if filter.Type != "" {
		must = append(must, map[string]any{
			"key":   "type",
			"match": map[string]any{"value": filter.Type},
		})
	}

	body := map[string]any{
		"vector": queryVec,
		"limit":  limit,
		"filter": map[string]any{"must": must},
	}

	resp, err := client.do(
		ctx, http.MethodPost,
		fmt.Sprintf(
			"%s/collections/%s/points/search",
			client.Endpoint, client.Collection,
		),
		body,
	)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant: search status %s", resp.Status)
	}

	var out struct {
		Result []SearchHit `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	return out.Result, nil
}

func (client *Client) do(
	ctx context.Context, method, url string, body any,
) (*http.Response, error) {
	b, err := json.Marshal(body)

	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))

	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	return client.httpClient.Do(req)
}
