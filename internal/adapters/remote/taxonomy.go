package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/pkg/logger"
)

// GormTaxonomySource reads categories and KPIs ordered by order_index.
type GormTaxonomySource struct {
	db *gorm.DB
}

// NewGormTaxonomySource creates a taxonomy source over db.
func NewGormTaxonomySource(db *gorm.DB) *GormTaxonomySource {
	return &GormTaxonomySource{db: db}
}

// LoadTaxonomy reads the current taxonomy snapshot.
func (s *GormTaxonomySource) LoadTaxonomy(ctx context.Context) (*model.Taxonomy, error) {
	var cats []categoryRow
	if err := s.db.WithContext(ctx).
		Select("id", "name", "description", "weight", "order_index").
		Order("order_index").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	var kpis []kpiRow
	if err := s.db.WithContext(ctx).
		Select("id", "category_id", "name", "description", "max_score", "order_index").
		Order("order_index").Find(&kpis).Error; err != nil {
		return nil, fmt.Errorf("load kpis: %w", err)
	}

	categories := make([]model.Category, 0, len(cats))
	for _, c := range cats {
		categories = append(categories, model.Category{
			ID:          c.ID,
			Name:        c.Name,
			Description: deref(c.Description),
			Weight:      c.Weight,
			OrderIndex:  c.OrderIndex,
		})
	}
	criteria := make([]model.KPI, 0, len(kpis))
	for _, k := range kpis {
		criteria = append(criteria, model.KPI{
			ID:          k.ID,
			CategoryID:  k.CategoryID,
			Name:        k.Name,
			Description: deref(k.Description),
			MaxScore:    k.MaxScore,
			OrderIndex:  k.OrderIndex,
		})
	}
	return model.NewTaxonomy(categories, criteria), nil
}

// CachedDataKey is the storage key of the local cache. It holds a JSON object
// of entries keyed by name, each with its data and the time it was stored.
const CachedDataKey = "cached_data"

const taxonomyCacheEntry = "taxonomy"

type cacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// CachedSource keeps the last taxonomy read in local storage and serves it
// when the remote read fails.
type CachedSource struct {
	src TaxonomySource
	kv  storage.KV
	log logger.Logger
	now func() time.Time
}

// NewCachedSource wraps src with a cache in kv.
func NewCachedSource(src TaxonomySource, kv storage.KV, log logger.Logger) *CachedSource {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedSource{src: src, kv: kv, log: log, now: time.Now}
}

// LoadTaxonomy reads from the remote source, refreshing the cache, and falls
// back to the cached snapshot on failure.
func (c *CachedSource) LoadTaxonomy(ctx context.Context) (*model.Taxonomy, error) {
	tax, err := c.src.LoadTaxonomy(ctx)
	if err == nil {
		c.store(ctx, tax)
		return tax, nil
	}

	cached, at, cacheErr := c.Cached(ctx)
	if cacheErr != nil {
		return nil, fmt.Errorf("%w: %w", err, cacheErr)
	}
	c.log.Warn(ctx, "serving cached taxonomy",
		logger.Error(err),
		logger.String("cached_at", at.Format(time.RFC3339)))
	return cached, nil
}

// Cached returns the cached snapshot and when it was stored.
func (c *CachedSource) Cached(ctx context.Context) (*model.Taxonomy, time.Time, error) {
	entries, err := c.entries(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrNoCachedTaxonomy, err)
	}
	entry, ok := entries[taxonomyCacheEntry]
	if !ok {
		return nil, time.Time{}, ErrNoCachedTaxonomy
	}
	var snap model.Snapshot
	if err := json.Unmarshal(entry.Data, &snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrNoCachedTaxonomy, err)
	}
	return snap.Taxonomy(), entry.Timestamp, nil
}

// entries reads the cache object. A missing key is an empty cache.
func (c *CachedSource) entries(ctx context.Context) (map[string]cacheEntry, error) {
	raw, err := c.kv.Get(ctx, CachedDataKey)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]cacheEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]cacheEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *CachedSource) store(ctx context.Context, tax *model.Taxonomy) {
	data, err := json.Marshal(tax.Snapshot())
	if err != nil {
		c.log.Error(ctx, "encode taxonomy cache", logger.Error(err))
		return
	}
	entries, err := c.entries(ctx)
	if err != nil {
		c.log.Warn(ctx, "cache is unreadable, rewriting it", logger.Error(err))
		entries = map[string]cacheEntry{}
	}
	entries[taxonomyCacheEntry] = cacheEntry{Data: data, Timestamp: c.now().UTC()}
	raw, err := json.Marshal(entries)
	if err != nil {
		c.log.Error(ctx, "encode cache", logger.Error(err))
		return
	}
	if err := c.kv.Set(ctx, CachedDataKey, raw); err != nil {
		c.log.Warn(ctx, "write taxonomy cache", logger.Error(err))
	}
}
