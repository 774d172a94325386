package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matiasroig/casera/internal/metrics"
)

// Pinecone talks to a Pinecone index's data plane. It implements VectorStore.
type Pinecone struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewPinecone creates a client for the index reachable at host (the full
// index URL, e.g. https://examples-abc123.svc.us-east-1-aws.pinecone.io).
func NewPinecone(host, apiKey string) *Pinecone {
	return &Pinecone{
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type upsertRequest struct {
	Vectors []vectorEntry `json:"vectors"`
}

type vectorEntry struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type statsResponse struct {
	TotalVectorCount int     `json:"totalVectorCount"`
	Dimension        int     `json:"dimension"`
	IndexFullness    float64 `json:"indexFullness"`
}

func (p *Pinecone) Upsert(ctx context.Context, id string, values []float32, metadata map[string]any) error {
	err := p.post(ctx, "/vectors/upsert", upsertRequest{
		Vectors: []vectorEntry{{ID: id, Values: values, Metadata: metadata}},
	}, nil)
	p.count("upsert", err)
	return err
}

func (p *Pinecone) Query(ctx context.Context, values []float32, topK int) ([]VectorMatch, error) {
	var resp queryResponse
	err := p.post(ctx, "/query", queryRequest{
		Vector:          values,
		TopK:            topK,
		IncludeMetadata: true,
	}, &resp)
	p.count("query", err)
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, VectorMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

func (p *Pinecone) Delete(ctx context.Context, id string) error {
	err := p.post(ctx, "/vectors/delete", deleteRequest{IDs: []string{id}}, nil)
	p.count("delete", err)
	return err
}

func (p *Pinecone) Stats(ctx context.Context) (IndexStats, error) {
	var resp statsResponse
	err := p.post(ctx, "/describe_index_stats", struct{}{}, &resp)
	p.count("stats", err)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{
		Count:     resp.TotalVectorCount,
		Dimension: resp.Dimension,
		Fullness:  resp.IndexFullness,
	}, nil
}

func (p *Pinecone) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (p *Pinecone) count(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.VectorOpsTotal.WithLabelValues(op, status).Inc()
}
