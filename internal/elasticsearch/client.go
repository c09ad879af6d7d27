package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrNotFound is returned when the requested document or index does not exist.
var ErrNotFound = errors.New("document not found")

// Client wraps go-elasticsearch with the document operations used by the service.
// It is safe for concurrent use; the underlying transport pools connections.
type Client struct {
	es  *elasticsearch.Client
	log *slog.Logger
}

// SearchResponse is the decoded part of a search response that callers need.
type SearchResponse struct {
	Total        int64
	Hits         []json.RawMessage
	Aggregations map[string]json.RawMessage
}

// BulkDocument is a single entry of a bulk index request.
type BulkDocument struct {
	ID  string
	Doc any
}

// New instantiates the Elasticsearch client.
func New(addr string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// ClusterHealth returns the cluster status: green, yellow or red.
func (c *Client) ClusterHealth(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", responseError("cluster health", res)
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode cluster health: %w", err)
	}

	return parsed.Status, nil
}

// IndexDocument creates or overwrites doc in index. An empty id lets
// Elasticsearch assign one. The stored document id is returned.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return "", fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", responseError("index document", res)
	}

	var parsed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode index response: %w", err)
	}

	c.log.Debug("indexed document", slog.String("index", index), slog.String("id", parsed.ID))
	return parsed.ID, nil
}

// GetDocument loads the _source of document id into out.
func (c *Client) GetDocument(ctx context.Context, index, id string, out any) error {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("get document %s/%s: %w", index, id, ErrNotFound)
	}
	if res.IsError() {
		return responseError("get document", res)
	}

	var parsed struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return fmt.Errorf("get document %s/%s: %w", index, id, ErrNotFound)
	}

	if err := json.Unmarshal(parsed.Source, out); err != nil {
		return fmt.Errorf("decode document source: %w", err)
	}
	return nil
}

// UpdateDocument merges partial into the stored document. Fields missing
// from partial keep their current values.
func (c *Client) UpdateDocument(ctx context.Context, index, id string, partial any) error {
	payload, err := json.Marshal(map[string]any{"doc": partial})
	if err != nil {
		return fmt.Errorf("marshal update body: %w", err)
	}

	res, err := c.es.Update(index, id, bytes.NewReader(payload), c.es.Update.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("update document %s/%s: %w", index, id, ErrNotFound)
	}
	if res.IsError() {
		return responseError("update document", res)
	}

	c.log.Debug("updated document", slog.String("index", index), slog.String("id", id))
	return nil
}

// DeleteDocument removes document id from index.
func (c *Client) DeleteDocument(ctx context.Context, index, id string) error {
	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete document %s/%s: %w", index, id, ErrNotFound)
	}
	if res.IsError() {
		return responseError("delete document", res)
	}

	c.log.Debug("deleted document", slog.String("index", index), slog.String("id", id))
	return nil
}

// Search runs a query DSL body against index.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) (*SearchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]json.RawMessage `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]json.RawMessage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		hits = append(hits, hit.Source)
	}

	return &SearchResponse{
		Total:        parsed.Hits.Total.Value,
		Hits:         hits,
		Aggregations: parsed.Aggregations,
	}, nil
}

// DecodeHits unmarshals every hit source of resp into T.
func DecodeHits[T any](resp *SearchResponse) ([]T, error) {
	items := make([]T, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// CreateIndex creates index with the given field types ("keyword" or "text").
func (c *Client) CreateIndex(ctx context.Context, index string, fields map[string]string) error {
	properties := make(map[string]any, len(fields))
	for name, typ := range fields {
		properties[name] = map[string]any{"type": typ}
	}

	payload, err := json.Marshal(map[string]any{
		"mappings": map[string]any{
			"properties": properties,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}

	res, err := c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("create index", res)
	}

	c.log.Info("elasticsearch index created", slog.String("index", index))
	return nil
}

// DeleteIndex drops index and every document in it.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete index %s: %w", index, ErrNotFound)
	}
	if res.IsError() {
		return responseError("delete index", res)
	}
	return nil
}

// BulkIndex writes docs to index in a single _bulk round trip. The call
// fails as a whole when Elasticsearch reports any item error.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []BulkDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"_index": index}
		if doc.ID != "" {
			meta["_id"] = doc.ID
		}
		if err := enc.Encode(map[string]any{"index": meta}); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(doc.Doc); err != nil {
			return fmt.Errorf("encode bulk doc %s: %w", doc.ID, err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("bulk index", res)
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}

	if parsed.Errors {
		failed := 0
		first := ""
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Error == nil {
					continue
				}
				failed++
				if first == "" {
					first = fmt.Sprintf("%s: %s: %s", result.ID, result.Error.Type, result.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk index failed: %d of %d documents rejected (first: %s)", failed, len(docs), first)
	}

	c.log.Debug("bulk indexed documents", slog.String("index", index), slog.Int("count", len(docs)))
	return nil
}

// CountDocuments returns the number of documents in index.
func (c *Client) CountDocuments(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithIndex(index),
		c.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("count documents in %s: %w", index, ErrNotFound)
	}
	if res.IsError() {
		return 0, responseError("count documents", res)
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

func responseError(op string, res *esapi.Response) error {
	data, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = res.Status()
	}
	return fmt.Errorf("%s failed: %s", op, msg)
}
