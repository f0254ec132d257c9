package store_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/knowbase-io/knowbase/internal/knowbase/store"
	"github.com/knowbase-io/knowbase/internal/model"
)

func newCitationStore(t *testing.T) *store.GormCitationStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	s, err := store.NewGormCitationStore(db)
	require.NoError(t, err)
	return s
}

func TestCitationCreateAndGet(t *testing.T) {
	s := newCitationStore(t)
	ctx := context.Background()

	citation := &model.Citation{
		ID:        "a3a9f1e2-0000-0000-0000-000000000001",
		Permalink: "https://example.slack.com/archives/C01/p1719238400253229",
		Content:   "the API is down until noon",
		Timestamp: "1719238400.253229",
		Username:  "bob",
	}
	require.NoError(t, s.Create(ctx, citation))

	got, err := s.Get(ctx, citation.ID)
	require.NoError(t, err)
	assert.Equal(t, citation.Permalink, got.Permalink)
	assert.Equal(t, "bob", got.Username)
}

func TestCitationCreateRequiresID(t *testing.T) {
	s := newCitationStore(t)
	assert.Error(t, s.Create(context.Background(), &model.Citation{Content: "no id"}))
}

func TestCitationGetNotFound(t *testing.T) {
	s := newCitationStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrCitationNotFound)
}

func TestCitationGetByIDsOmitsMissingAndKeepsOrder(t *testing.T) {
	s := newCitationStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Citation{ID: "c1", Username: "alice"}))
	require.NoError(t, s.Create(ctx, &model.Citation{ID: "c2", Username: "bob"}))

	got, err := s.GetByIDs(ctx, []string{"c2", "missing", "c1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Username)
	assert.Equal(t, "alice", got[1].Username)
}

func TestCitationGetByIDsEmpty(t *testing.T) {
	s := newCitationStore(t)
	got, err := s.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCitationCount(t *testing.T) {
	s := newCitationStore(t)
	ctx := context.Background()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	require.NoError(t, s.Create(ctx, &model.Citation{ID: "c1"}))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
