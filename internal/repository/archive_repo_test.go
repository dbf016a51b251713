package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	archived := &models.ArchivedJob{
		Name:             "cam1",
		Reason:           "decommissioned",
		SerializedConfig: `{"jobName":"cam1","inputFile":"/input/a.mp4"}`,
	}
	require.NoError(t, repo.Create(ctx, archived))
	assert.False(t, archived.ID.IsZero())
	assert.False(t, archived.ArchivedAt.IsZero())

	got, err := repo.GetByID(ctx, archived.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cam1", got.Name)
	assert.Equal(t, "decommissioned", got.Reason)

	cfg, err := got.Config()
	require.NoError(t, err)
	assert.Equal(t, "cam1", cfg.JobName)
}

func TestArchiveRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)

	got, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArchiveRepo_SameNameArchivedTwice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	first := &models.ArchivedJob{Name: "cam1", SerializedConfig: `{}`}
	second := &models.ArchivedJob{Name: "cam1", SerializedConfig: `{}`}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	_, total, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestArchiveRepo_List_MostRecentFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"a", "b", "c"} {
		archived := &models.ArchivedJob{
			Name:             name,
			ArchivedAt:       base.Add(time.Duration(i) * time.Minute),
			SerializedConfig: `{}`,
		}
		require.NoError(t, repo.Create(ctx, archived))
	}

	archived, total, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, archived, 2)
	assert.Equal(t, "c", archived[0].Name)
	assert.Equal(t, "b", archived[1].Name)
}

func TestArchiveRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)
	ctx := context.Background()

	archived := &models.ArchivedJob{Name: "cam1", SerializedConfig: `{}`}
	require.NoError(t, repo.Create(ctx, archived))

	require.NoError(t, repo.Delete(ctx, archived.ID))

	got, err := repo.GetByID(ctx, archived.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, archived.ID), models.ErrArchiveNotFound)
}
