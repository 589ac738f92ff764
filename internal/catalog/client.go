// Package catalog imports products from an external JSON catalog feed.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSourceURL is the public feed the importer reads when none is configured.
const DefaultSourceURL = "https://dummyjson.com/products?limit=0"

const maxFeedBytes = 32 << 20

// FeedProduct is one product as published by the feed.
type FeedProduct struct {
	Title       string          `json:"title"`
	SKU         string          `json:"sku"`
	Images      []string        `json:"images"`
	Thumbnail   string          `json:"thumbnail"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Stock       int64           `json:"stock"`
}

// Image returns the first gallery image, falling back to the thumbnail.
func (p FeedProduct) Image() string {
	for _, img := range p.Images {
		if img = strings.TrimSpace(img); img != "" {
			return img
		}
	}
	return strings.TrimSpace(p.Thumbnail)
}

type feedDocument struct {
	Products []FeedProduct `json:"products"`
}

// Client reads the catalog feed over HTTP.
type Client struct {
	sourceURL  string
	httpClient *http.Client
}

// NewClient constructs a feed client. An empty sourceURL selects DefaultSourceURL.
func NewClient(sourceURL string, timeout time.Duration) *Client {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		sourceURL:  sourceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SourceURL reports the configured feed location.
func (c *Client) SourceURL() string {
	return c.sourceURL
}

// Fetch downloads the feed. sourceURL overrides the configured location when set.
func (c *Client) Fetch(ctx context.Context, sourceURL string) ([]FeedProduct, error) {
	if c == nil {
		return nil, errors.New("catalog: client not configured")
	}
	if sourceURL == "" {
		sourceURL = c.sourceURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch feed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog: feed returned status %d", resp.StatusCode)
	}

	var doc feedDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode feed: %w", err)
	}
	return doc.Products, nil
}
