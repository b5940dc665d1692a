package storage

import "time"

// CacheEntry is the row layout used by the SQL backed caches.
type CacheEntry struct {
	ResourceID string    `gorm:"primaryKey;column:resource_id"`
	Payload    []byte    `gorm:"column:payload"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (CacheEntry) TableName() string { return "resource_cache" }
