// Package content provides read access to the pipeline's content store for
// the fault detectors and batch reconciliation.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// ErrContentQuery is returned when a content store query fails.
var ErrContentQuery = errors.New("content store query failed")

// Elasticsearch field name constants.
const (
	esFieldCreatedAt = "created_at"
	esFieldScopeRef  = "scope_ref"
)

const (
	esQueryTimeout     = 30 * time.Second
	defaultESQuerySize = 200
)

// Item is a content document as the monitor sees it. Detectors only need
// enough of the document to judge health, not the full rendering payload.
type Item struct {
	ID        string    `json:"id"`
	ScopeRef  string    `json:"scope_ref"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config configures the content store client.
type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// Client wraps the Elasticsearch content indexes with the two read views
// the monitor needs.
type Client struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

// NewClient creates a content store client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentQuery, err)
	}

	return &Client{es: es, index: cfg.Index, logger: log}, nil
}

// RecentItems returns items created since the given time, newest first.
func (c *Client) RecentItems(ctx context.Context, since time.Time) ([]Item, error) {
	query := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				esFieldCreatedAt: map[string]any{
					"gte": since.Format(time.RFC3339),
				},
			},
		},
		"size": defaultESQuerySize,
		"sort": []map[string]any{
			{esFieldCreatedAt: map[string]any{"order": "desc"}},
		},
	}

	return c.search(ctx, query)
}

// ItemsSince returns items created since the given time for the given scope
// references. This is the reconciliation view: a scope present in the result
// produced output, a scope absent did not.
func (c *Client) ItemsSince(ctx context.Context, since time.Time, scopeRefs []string) ([]Item, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{
						"range": map[string]any{
							esFieldCreatedAt: map[string]any{
								"gte": since.Format(time.RFC3339),
							},
						},
					},
					{
						"terms": map[string]any{
							esFieldScopeRef: scopeRefs,
						},
					},
				},
			},
		},
		"size": defaultESQuerySize,
	}

	return c.search(ctx, query)
}

func (c *Client) search(ctx context.Context, query map[string]any) ([]Item, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, esQueryTimeout)
	defer cancel()

	start := time.Now()
	res, err := c.es.Search(
		c.es.Search.WithContext(queryCtx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		c.logger.Error("content store search failed",
			logger.String("index_name", c.index),
			logger.Duration("query_duration", time.Since(start)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrContentQuery, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]any
		if decodeErr := json.NewDecoder(res.Body).Decode(&e); decodeErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrContentQuery, res.Status())
		}
		c.logger.Error("content store error response",
			logger.String("index_name", c.index),
			logger.String("status", res.Status()),
			logger.Any("error_details", e),
		)
		return nil, fmt.Errorf("%w: %v", ErrContentQuery, e)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source Item   `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	items := make([]Item, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		hit := &result.Hits.Hits[i]
		if hit.Source.ID == "" {
			hit.Source.ID = hit.ID
		}
		items = append(items, hit.Source)
	}

	c.logger.Debug("content store query completed",
		logger.String("index_name", c.index),
		logger.Int("count", len(items)),
		logger.Duration("query_duration", time.Since(start)),
	)

	return items, nil
}

// ScopesPresent reduces a result set to the set of scope references that
// produced at least one item.
func ScopesPresent(items []Item) map[string]bool {
	present := make(map[string]bool, len(items))
	for i := range items {
		if items[i].ScopeRef != "" {
			present[items[i].ScopeRef] = true
		}
	}
	return present
}
