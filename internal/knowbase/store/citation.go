package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/knowbase-io/knowbase/internal/model"
)

// ErrCitationNotFound is returned by Get when no citation has the given id.
var ErrCitationNotFound = errors.New("citation not found")

// GormCitationStore stores citations in a relational database via GORM.
type GormCitationStore struct {
	db *gorm.DB
}

// NewGormCitationStore creates a citation store and migrates its schema.
func NewGormCitationStore(db *gorm.DB) (*GormCitationStore, error) {
	if err := db.AutoMigrate(&model.Citation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate citations table: %w", err)
	}
	return &GormCitationStore{db: db}, nil
}

// Create stores a citation.
func (s *GormCitationStore) Create(ctx context.Context, citation *model.Citation) error {
	if citation.ID == "" {
		return fmt.Errorf("citation id is required")
	}
	if err := s.db.WithContext(ctx).Create(citation).Error; err != nil {
		return fmt.Errorf("failed to create citation: %w", err)
	}
	return nil
}

// Get returns a citation by id.
func (s *GormCitationStore) Get(ctx context.Context, id string) (*model.Citation, error) {
	var citation model.Citation
	err := s.db.WithContext(ctx).First(&citation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCitationNotFound
		}
		return nil, fmt.Errorf("failed to get citation: %w", err)
	}
	return &citation, nil
}

// GetByIDs returns the citations matching the given ids. The result order
// follows the input id order; missing ids are omitted.
func (s *GormCitationStore) GetByIDs(ctx context.Context, ids []string) ([]model.Citation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []model.Citation
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get citations: %w", err)
	}

	byID := make(map[string]model.Citation, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	ordered := make([]model.Citation, 0, len(rows))
	for _, id := range ids {
		if citation, ok := byID[id]; ok {
			ordered = append(ordered, citation)
		}
	}

	return ordered, nil
}

// Count returns the number of stored citations.
func (s *GormCitationStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Citation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count citations: %w", err)
	}
	return count, nil
}
