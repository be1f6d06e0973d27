package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ElasticClient queries a translation-memory index over the Elasticsearch
// search API. The source field is boosted so term lookups favour exact
// source-language matches over target-side echoes.
type ElasticClient struct {
	baseURL     string
	index       string
	sourceField string
	targetField string
	client      *http.Client
}

// NewElasticClient creates a client for the given host and index.
// sourceField/targetField name the document fields holding the two sides
// of each memory pair (e.g. "en", "zh").
func NewElasticClient(baseURL, index, sourceField, targetField string) *ElasticClient {
	return &ElasticClient{
		baseURL:     baseURL,
		index:       index,
		sourceField: sourceField,
		targetField: targetField,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type searchRequest struct {
	Size  int `json:"size"`
	Query struct {
		MultiMatch struct {
			Query  string   `json:"query"`
			Fields []string `json:"fields"`
		} `json:"multi_match"`
	} `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]string `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *ElasticClient) Search(ctx context.Context, term string, topK int) ([]Pair, error) {
	if topK <= 0 {
		topK = 3
	}

	var sreq searchRequest
	sreq.Size = topK
	sreq.Query.MultiMatch.Query = term
	sreq.Query.MultiMatch.Fields = []string{c.sourceField + "^2", c.targetField}

	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", c.baseURL, c.index)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	pairs := make([]Pair, 0, len(decoded.Hits.Hits))
	for _, h := range decoded.Hits.Hits {
		pairs = append(pairs, Pair{
			Source: h.Source[c.sourceField],
			Target: h.Source[c.targetField],
		})
	}
	return pairs, nil
}
