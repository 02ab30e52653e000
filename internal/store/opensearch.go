// Package store wraps OpenSearch as the connector's document store.
// Writes are atomic upserts keyed by the natural document ID; the
// insert/update/noop outcome comes from the store's reported result.
package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/seclens/feedbridge/internal/models"
)

// Config holds the OpenSearch connection settings and target index.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string
}

// ConnectionError marks a store-level failure: nothing load-side can
// proceed, so the batch aborts.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Outcome classifies one upsert as reported by the store.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeNoop
)

// ValueCount is one bucket of a group-count aggregation.
type ValueCount struct {
	Value string
	Count int64
}

// Client is the connector's handle on one OpenSearch index.
type Client struct {
	os    *opensearch.Client
	index string
}

// Open creates a client and verifies the connection with a ping.
func Open(cfg Config) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	info, err := client.Info()
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, &ConnectionError{Err: fmt.Errorf("opensearch returned %s", info.Status())}
	}

	return &Client{os: client, index: cfg.Index}, nil
}

// Index returns the index this client writes to.
func (c *Client) Index() string { return c.index }

// EnsureIndex creates the target index with the connector mappings.
// An already-existing index is success, so repeated runs are safe.
func (c *Client) EnsureIndex(ctx context.Context) error {
	exists, err := c.os.Indices.Exists([]string{c.index})
	if err != nil {
		return &ConnectionError{Err: err}
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(map[string]any{"mappings": documentMappings()})
	if err != nil {
		return err
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: c.index,
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		// Lost the exists/create race; the index is there either way.
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: %s - %s", c.index, res.Status(), string(raw))
	}
	return nil
}

// Upsert writes one document keyed by its natural ID in a single store
// operation: set on match, insert on no match. The returned outcome is
// taken from the store's reported result, with an unchanged write
// reported as OutcomeNoop.
func (c *Client) Upsert(ctx context.Context, doc *models.Document) (Outcome, error) {
	payload, err := json.Marshal(map[string]any{
		"doc":           doc.Body,
		"doc_as_upsert": true,
		"detect_noop":   true,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}

	req := opensearchapi.UpdateRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return 0, &ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, fmt.Errorf("upsert %s: %s - %s", doc.ID, res.Status(), string(raw))
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode upsert response for %s: %w", doc.ID, err)
	}

	switch out.Result {
	case "created":
		return OutcomeCreated, nil
	case "updated":
		return OutcomeUpdated, nil
	case "noop":
		return OutcomeNoop, nil
	default:
		return 0, fmt.Errorf("upsert %s: unexpected result %q", doc.ID, out.Result)
	}
}

// Refresh makes recent writes visible to counts and searches.
func (c *Client) Refresh(ctx context.Context) error {
	req := opensearchapi.IndicesRefreshRequest{Index: []string{c.index}}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	res.Body.Close()
	return nil
}

// CountAll returns the total number of documents in the index.
func (c *Client) CountAll(ctx context.Context) (int64, error) {
	return c.count(ctx, nil)
}

// CountTerm returns the number of documents whose field equals value.
func (c *Client) CountTerm(ctx context.Context, field string, value any) (int64, error) {
	return c.count(ctx, map[string]any{
		"term": map[string]any{field: value},
	})
}

// CountExists returns the number of documents carrying the given field.
func (c *Client) CountExists(ctx context.Context, field string) (int64, error) {
	return c.count(ctx, map[string]any{
		"exists": map[string]any{"field": field},
	})
}

func (c *Client) count(ctx context.Context, query map[string]any) (int64, error) {
	var body io.Reader
	if query != nil {
		payload, err := json.Marshal(map[string]any{"query": query})
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(payload)
	}

	req := opensearchapi.CountRequest{Index: []string{c.index}, Body: body}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return 0, &ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count on %s: %s", c.index, res.Status())
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Distinct returns up to size distinct values of a keyword field.
func (c *Client) Distinct(ctx context.Context, field string, size int) ([]string, error) {
	buckets, err := c.terms(ctx, field, size)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(buckets))
	for _, b := range buckets {
		values = append(values, b.Value)
	}
	return values, nil
}

// TopValues returns the n most frequent values of a keyword field with
// their document counts.
func (c *Client) TopValues(ctx context.Context, field string, n int) ([]ValueCount, error) {
	return c.terms(ctx, field, n)
}

func (c *Client) terms(ctx context.Context, field string, size int) ([]ValueCount, error) {
	if size <= 0 {
		size = 10
	}
	payload, err := json.Marshal(map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"values": map[string]any{
				"terms": map[string]any{"field": field, "size": size},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req := opensearchapi.SearchRequest{Index: []string{c.index}, Body: bytes.NewReader(payload)}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("aggregate %s on %s: %s", field, c.index, res.Status())
	}

	var out struct {
		Aggregations struct {
			Values struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"values"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}

	buckets := make([]ValueCount, 0, len(out.Aggregations.Values.Buckets))
	for _, b := range out.Aggregations.Values.Buckets {
		buckets = append(buckets, ValueCount{Value: b.Key, Count: b.DocCount})
	}
	return buckets, nil
}

// Average returns the mean of a numeric field across the index.
func (c *Client) Average(ctx context.Context, field string) (float64, error) {
	payload, err := json.Marshal(map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"mean": map[string]any{
				"avg": map[string]any{"field": field},
			},
		},
	})
	if err != nil {
		return 0, err
	}

	req := opensearchapi.SearchRequest{Index: []string{c.index}, Body: bytes.NewReader(payload)}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return 0, &ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("average %s on %s: %s", field, c.index, res.Status())
	}

	var out struct {
		Aggregations struct {
			Mean struct {
				Value float64 `json:"value"`
			} `json:"mean"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Aggregations.Mean.Value, nil
}

// documentMappings covers the key-bearing and commonly filtered fields;
// everything else maps dynamically as text with a keyword subfield.
func documentMappings() map[string]any {
	return map[string]any{
		"dynamic": true,
		"dynamic_templates": []map[string]any{
			{
				"strings_as_keywords": map[string]any{
					"match_mapping_type": "string",
					"mapping": map[string]any{
						"type": "text",
						"fields": map[string]any{
							"keyword": map[string]any{
								"type":         "keyword",
								"ignore_above": 256,
							},
						},
					},
				},
			},
		},
		"properties": map[string]any{
			"phish_id": map[string]any{"type": "keyword"},
			"url":      map[string]any{"type": "keyword"},
			"title":    map[string]any{"type": "text"},
			"source": map[string]any{
				"properties": map[string]any{
					"id":   map[string]any{"type": "keyword"},
					"name": map[string]any{"type": "keyword"},
				},
			},
			"ingestion_timestamp":  map[string]any{"type": "date"},
			"published_timestamp":  map[string]any{"type": "date"},
			"published_date":       map[string]any{"type": "keyword"},
			"submission_timestamp": map[string]any{"type": "date"},
			"submission_date":      map[string]any{"type": "keyword"},
			"data_quality": map[string]any{
				"properties": map[string]any{
					"title_length":       map[string]any{"type": "integer"},
					"description_length": map[string]any{"type": "integer"},
					"content_length":     map[string]any{"type": "integer"},
					"url_length":         map[string]any{"type": "integer"},
				},
			},
			"etl_metadata": map[string]any{
				"properties": map[string]any{
					"ingestion_timestamp": map[string]any{"type": "date"},
					"ingestion_date":      map[string]any{"type": "keyword"},
					"source":              map[string]any{"type": "keyword"},
					"connector_version":   map[string]any{"type": "keyword"},
					"data_type":           map[string]any{"type": "keyword"},
					"data_quality_issues": map[string]any{"type": "keyword"},
				},
			},
		},
	}
}
