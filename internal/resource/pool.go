package resource

import (
	"bytes"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bher20/fxratemanager/internal/metrics"
)

// DefaultPoolSize is the number of payloads held when no size is configured.
const DefaultPoolSize = 64

// PayloadPool holds the last good payload of each resource. Entries may be
// evicted by size or age at any time; owners reload on a miss.
type PayloadPool struct {
	lru *expirable.LRU[string, []byte]
}

// NewPayloadPool creates a pool bounded by size entries and maxAge. A zero
// maxAge disables age based eviction.
func NewPayloadPool(size int, maxAge time.Duration) *PayloadPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	onEvict := func(id string, _ []byte) {
		metrics.PayloadReclaimsTotal.WithLabelValues(id).Inc()
	}
	return &PayloadPool{lru: expirable.NewLRU[string, []byte](size, onEvict, maxAge)}
}

// Get returns a copy of the payload held for id.
func (p *PayloadPool) Get(id string) ([]byte, bool) {
	data, ok := p.lru.Get(id)
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Contains reports whether a payload is held without touching recency.
func (p *PayloadPool) Contains(id string) bool {
	return p.lru.Contains(id)
}

func (p *PayloadPool) Put(id string, data []byte) {
	p.lru.Add(id, bytes.Clone(data))
}

// Drop discards the payload held for id.
func (p *PayloadPool) Drop(id string) {
	p.lru.Remove(id)
}

func (p *PayloadPool) Len() int { return p.lru.Len() }
