package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/testutil"
)

func seeded(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	require.NoError(t, Seed(context.Background(), repo))
	return repo
}

func TestMemoryRepository_Track(t *testing.T) {
	repo := seeded(t)

	recs, err := repo.Track(context.Background(), "ct-0012")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "CT-001234", recs[0].ID, "newest first")

	recs, err = repo.Track(context.Background(), "1189")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Updates, 3)
}

func TestMemoryRepository_List(t *testing.T) {
	repo := seeded(t)

	tests := []struct {
		name   string
		filter domain.Filter
		want   []string
	}{
		{"all", domain.Filter{Status: "all", Priority: "all"}, []string{"CT-001234", "CT-001237", "CT-001235", "CT-001236", "CT-001189"}},
		{"search description", domain.Filter{Search: "STREETLIGHT"}, []string{"CT-001235", "CT-001189"}},
		{"search address", domain.Filter{Search: "oak"}, []string{"CT-001237"}},
		{"search id", domain.Filter{Search: "001236"}, []string{"CT-001236"}},
		{"status", domain.Filter{Status: "resolved"}, []string{"CT-001236", "CT-001189"}},
		{"priority and status", domain.Filter{Status: "in progress", Priority: "high"}, []string{"CT-001234", "CT-001237"}},
		{"no match", domain.Filter{Search: "volcano"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.List(context.Background(), tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryRepository_AppendUpdate(t *testing.T) {
	repo := seeded(t)
	completed := testutil.FixedTime

	rec, err := repo.AppendUpdate(context.Background(), "CT-001237",
		domain.Update{Date: testutil.FixedTime, Status: domain.StatusResolved, Message: "Main repaired.", Author: "Crew"}, &completed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, rec.Status)
	assert.Equal(t, testutil.FixedTime, *rec.CompletedAt)
	assert.Equal(t, "Main repaired.", rec.Updates[0].Message)
	assert.Len(t, rec.Updates, 3)

	_, err = repo.AppendUpdate(context.Background(), "CT-999999", domain.Update{}, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := seeded(t)

	rec, err := repo.Get(context.Background(), "CT-001234")
	require.NoError(t, err)
	rec.Updates[0].Message = "tampered"
	rec.Status = domain.StatusResolved

	again, err := repo.Get(context.Background(), "CT-001234")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, again.Status)
	assert.NotEqual(t, "tampered", again.Updates[0].Message)
}

func TestMemoryRepository_CreateDuplicate(t *testing.T) {
	repo := seeded(t)
	err := repo.Create(context.Background(), SeedRecords()[0])
	assert.ErrorIs(t, err, errors.ErrConflict)

	ids, err := repo.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CT-001189", "CT-001234", "CT-001235", "CT-001236", "CT-001237"}, ids)
}
