// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proxy

import (
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ManuGH/camrelay/internal/metrics"
)

// DefaultCacheSize bounds the number of cached segment responses.
const DefaultCacheSize = 100

// SegmentCache holds upstream segment responses. Entries are never
// invalidated; segment names are unique per pipeline run.
type SegmentCache struct {
	entries *lru.Cache[string, *Response]
}

// NewSegmentCache returns a cache bounded to size entries.
func NewSegmentCache(size int) (*SegmentCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.NewWithEvict[string, *Response](size, func(string, *Response) {
		metrics.IncForwardCacheEviction()
	})
	if err != nil {
		return nil, err
	}
	return &SegmentCache{entries: entries}, nil
}

// CacheKey identifies a request by device, path and canonical query.
func CacheKey(device, path string, query url.Values) string {
	return device + "\x00" + path + "\x00" + query.Encode()
}

func (c *SegmentCache) Get(key string) (*Response, bool) {
	return c.entries.Get(key)
}

// Add stores resp. Only 200 responses are kept.
func (c *SegmentCache) Add(key string, resp *Response) bool {
	if resp.Status != http.StatusOK {
		return false
	}
	c.entries.Add(key, resp)
	return true
}

func (c *SegmentCache) Len() int {
	return c.entries.Len()
}
