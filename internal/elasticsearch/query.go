package elasticsearch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Aggregation names used by OrderAggregationQuery.
const (
	AggUniqueSKUs     = "unique-skus"
	AggAveragePrice   = "average-price"
	AggQuantityStats  = "quantity-stats"
	AggProductNames   = "product-name"
	productNameField  = "products.product_name.keyword"
	productPriceField = "products.price"
)

// NewsFieldMappings declares the News index field types. Other fields fall
// back to dynamic mapping.
func NewsFieldMappings() map[string]string {
	return map[string]string{
		"id":    "keyword",
		"title": "text",
	}
}

// FuzzyTitleQuery matches title with an edit distance derived from term length.
func FuzzyTitleQuery(title string, from, size int) map[string]any {
	return map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"match": map[string]any{
				"title": map[string]any{
					"query":     title,
					"fuzziness": "AUTO",
				},
			},
		},
	}
}

// OrderAggregationQuery builds the sample e-commerce query: any of the
// should clauses matches, only the user field is returned, and four
// aggregations summarize the matching orders.
func OrderAggregationQuery(user string, ids []string, now time.Time) map[string]any {
	should := []map[string]any{
		{"term": map[string]any{"user": user}},
		{"terms": map[string]any{"user": []string{user}}},
		{"range": map[string]any{
			"order_date": map[string]any{"lt": now.UTC().Format(time.RFC3339)},
		}},
		{"exists": map[string]any{"field": "user"}},
		{"ids": map[string]any{"values": ids}},
	}

	return map[string]any{
		"from": 0,
		"size": 10,
		"query": map[string]any{
			"bool": map[string]any{
				"should": should,
			},
		},
		"_source": map[string]any{
			"includes": []string{"user"},
		},
		"aggs": map[string]any{
			AggUniqueSKUs: map[string]any{
				"cardinality": map[string]any{"field": "sku"},
			},
			AggAveragePrice: map[string]any{
				"avg": map[string]any{"field": productPriceField},
			},
			AggQuantityStats: map[string]any{
				"stats": map[string]any{"field": "total_quantity"},
			},
			AggProductNames: map[string]any{
				"terms": map[string]any{"field": productNameField},
			},
		},
	}
}

// Stats is the result of a stats aggregation. Min, Max and Avg are nil
// when no document matched.
type Stats struct {
	Count int64    `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Sum   float64  `json:"sum"`
}

// Bucket is a single terms aggregation bucket.
type Bucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// OrderAggregations is the typed view of the OrderAggregationQuery aggregations.
// JSON keys are the aggregation names used in the query.
type OrderAggregations struct {
	UniqueSKUs    int64    `json:"unique-skus"`
	AveragePrice  *float64 `json:"average-price"`
	QuantityStats Stats    `json:"quantity-stats"`
	ProductNames  []Bucket `json:"product-name"`
}

// DecodeOrderAggregations extracts the aggregations requested by OrderAggregationQuery.
// Missing aggregations are left at their zero value.
func DecodeOrderAggregations(raw map[string]json.RawMessage) (OrderAggregations, error) {
	var out OrderAggregations

	if data, ok := raw[AggUniqueSKUs]; ok {
		var v struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return out, fmt.Errorf("decode %s: %w", AggUniqueSKUs, err)
		}
		out.UniqueSKUs = v.Value
	}

	if data, ok := raw[AggAveragePrice]; ok {
		var v struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return out, fmt.Errorf("decode %s: %w", AggAveragePrice, err)
		}
		out.AveragePrice = v.Value
	}

	if data, ok := raw[AggQuantityStats]; ok {
		if err := json.Unmarshal(data, &out.QuantityStats); err != nil {
			return out, fmt.Errorf("decode %s: %w", AggQuantityStats, err)
		}
	}

	out.ProductNames = []Bucket{}
	if data, ok := raw[AggProductNames]; ok {
		var v struct {
			Buckets []Bucket `json:"buckets"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return out, fmt.Errorf("decode %s: %w", AggProductNames, err)
		}
		if v.Buckets != nil {
			out.ProductNames = v.Buckets
		}
	}

	return out, nil
}
