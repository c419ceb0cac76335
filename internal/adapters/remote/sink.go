package remote

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSink applies mutations through gorm to an allowlisted set of tables.
type GormSink struct {
	db        *gorm.DB
	resources map[string]struct{}
}

// SinkOption configures a GormSink.
type SinkOption func(*GormSink)

// WithResources replaces the resource allowlist.
func WithResources(resources ...string) SinkOption {
	return func(s *GormSink) {
		if len(resources) == 0 {
			return
		}
		s.resources = make(map[string]struct{}, len(resources))
		for _, r := range resources {
			s.resources[r] = struct{}{}
		}
	}
}

// NewGormSink creates a sink over db.
func NewGormSink(db *gorm.DB, opts ...SinkOption) *GormSink {
	s := &GormSink{db: db}
	WithResources(DefaultResources...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormSink) check(resource string) error {
	if _, ok := s.resources[resource]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	return nil
}

// Insert creates record. Records carry client generated ids, so a replay of an
// insert that already landed is a no-op.
func (s *GormSink) Insert(ctx context.Context, resource string, record map[string]any) error {
	if err := s.check(resource); err != nil {
		return err
	}
	row := make(map[string]any, len(record))
	for k, v := range record {
		row[k] = v
	}
	tx := s.db.WithContext(ctx).Table(resource)
	if _, ok := row["id"]; ok {
		tx = tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true})
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", resource, err)
	}
	return nil
}

// Update applies partial to the record with the given id. The id key of
// partial, if any, is ignored.
func (s *GormSink) Update(ctx context.Context, resource, id string, partial map[string]any) error {
	if err := s.check(resource); err != nil {
		return err
	}
	if id == "" {
		return ErrMissingID
	}
	fields := make(map[string]any, len(partial))
	for k, v := range partial {
		if k != "id" {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Table(resource).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update %s %s: %w", resource, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, resource, id)
	}
	return nil
}

// Delete removes the record with the given id. Deleting a missing record succeeds.
func (s *GormSink) Delete(ctx context.Context, resource, id string) error {
	if err := s.check(resource); err != nil {
		return err
	}
	if id == "" {
		return ErrMissingID
	}
	err := s.db.WithContext(ctx).
		Exec("DELETE FROM ? WHERE id = ?", clause.Table{Name: resource}, id).Error
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", resource, id, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *GormSink) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
