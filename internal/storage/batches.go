package storage

import (
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

// DefaultTTL is how long a processed batch stays retrievable.
const DefaultTTL = time.Hour

// BatchStore keeps processed batches in memory so result pages and the JSON
// API can be revisited. Entries expire after the store's TTL.
type BatchStore struct {
	batches *cache.Cache
}

// New creates a store. A ttl of zero or less keeps batches until deleted.
func New(ttl time.Duration) *BatchStore {
	if ttl <= 0 {
		return &BatchStore{batches: cache.New(cache.NoExpiration, 0)}
	}
	return &BatchStore{batches: cache.New(ttl, ttl*2)}
}

func (s *BatchStore) Get(batchID string) (*models.Batch, bool) {
	v, found := s.batches.Get(batchID)
	if !found {
		return nil, false
	}
	batch, ok := v.(*models.Batch)
	return batch, ok
}

func (s *BatchStore) Set(batch *models.Batch) {
	s.batches.Set(batch.ID, batch, cache.DefaultExpiration)
}

// GetAll returns the live batches, newest first.
func (s *BatchStore) GetAll() []*models.Batch {
	items := s.batches.Items()
	result := make([]*models.Batch, 0, len(items))
	for _, item := range items {
		if batch, ok := item.Object.(*models.Batch); ok {
			result = append(result, batch)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *BatchStore) Delete(batchID string) {
	s.batches.Delete(batchID)
}

func (s *BatchStore) Len() int {
	return s.batches.ItemCount()
}
