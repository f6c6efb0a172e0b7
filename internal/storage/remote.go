package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"breakguard/internal/knowledge"
)

// DefaultIndexName is the collection that holds catalog vectors.
const DefaultIndexName = "api_versions"

// HTTPStore talks to a remote vector-search service over JSON. Filters are
// sent as a list of exact-match conditions on library and version.
type HTTPStore struct {
	client  *http.Client
	baseURL string
	index   string
	token   string
}

type filterCond map[string]map[string]any

type httpQueryRequest struct {
	Vector []float32    `json:"vector"`
	K      int          `json:"k"`
	Filter []filterCond `json:"filter"`
}

type httpQueryResult struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

type httpQueryResponse struct {
	Results []httpQueryResult `json:"results"`
}

type httpCountRequest struct {
	Filter []filterCond `json:"filter"`
}

type httpCountResponse struct {
	Count int `json:"count"`
}

type httpVector struct {
	ID     string         `json:"id"`
	Vector []float32      `json:"vector"`
	Meta   map[string]any `json:"meta"`
	Filter map[string]any `json:"filter"`
}

// NewHTTPStore creates a client for the service at baseURL.
func NewHTTPStore(baseURL, index, token string, timeout time.Duration) *HTTPStore {
	if strings.TrimSpace(index) == "" {
		index = DefaultIndexName
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPStore{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		index:   index,
		token:   token,
	}
}

func (h *HTTPStore) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func toConditions(f knowledge.Filter) []filterCond {
	return []filterCond{
		{"library": {"$eq": f.Library}},
		{"version": {"$eq": f.Version}},
	}
}

func (h *HTTPStore) Query(ctx context.Context, vector []float32, filter knowledge.Filter, topK int) ([]knowledge.Hit, error) {
	var resp httpQueryResponse
	req := httpQueryRequest{Vector: vector, K: topK, Filter: toConditions(filter)}
	if err := h.post(ctx, "query", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]knowledge.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, knowledge.Hit{ID: r.ID, Score: r.Similarity})
	}
	return hits, nil
}

func (h *HTTPStore) Count(ctx context.Context, filter knowledge.Filter) (int, error) {
	var resp httpCountResponse
	if err := h.post(ctx, "count", httpCountRequest{Filter: toConditions(filter)}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (h *HTTPStore) Upsert(ctx context.Context, records []knowledge.Record) error {
	if len(records) == 0 {
		return nil
	}
	payload := make([]httpVector, 0, len(records))
	for _, r := range records {
		payload = append(payload, httpVector{
			ID:     r.ID,
			Vector: r.Vector,
			Meta: map[string]any{
				"function":   r.Function,
				"deprecated": r.Deprecated,
			},
			Filter: map[string]any{
				"library": r.Library,
				"version": r.Version,
			},
		})
	}
	return h.post(ctx, "vector/insert", payload, nil)
}

func (h *HTTPStore) post(ctx context.Context, op string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/index/%s/%s", h.baseURL, url.PathEscape(h.index), op)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector service %s failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vector service %s failed (%d): %s", op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("vector service %s: bad response: %w", op, err)
	}
	return nil
}
