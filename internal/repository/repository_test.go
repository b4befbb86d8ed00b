package repository_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/repository"
	"tourism_media/internal/storage/postgresql"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testCtx = context.Background()
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx)
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf(
		"postgres://test:test@%s:%s/testdb?sslmode=disable",
		host,
		port.Port(),
	)

	require.NoError(t, postgresql.Migrate(connStr, slog.Default()))

	pool, err := pgxpool.Connect(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	return pool
}

func mustCreatePlace(t *testing.T, repo *repository.PlaceRepo) models.Place {
	t.Helper()

	place, err := repo.CreatePlace(testCtx, models.Place{
		Name:     gofakeit.City() + " lookout",
		Location: gofakeit.Address().Address,
		Category: "viewpoint",
	})
	require.NoError(t, err)

	return place
}

func photoFor(placeID uuid.UUID, principal bool, order int) *models.Photo {
	path := fmt.Sprintf("places/%s/%s.jpg", placeID, uuid.NewString())
	return &models.Photo{
		PlaceID:     placeID,
		URL:         "http://cdn.local/" + path,
		StoragePath: path,
		IsPrincipal: principal,
		Order:       order,
	}
}

func TestGalleryRepo_Transactions(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	place := mustCreatePlace(t, repo.Places)

	first := photoFor(place.ID, true, 0)
	second := photoFor(place.ID, false, 1)

	t.Run("create photos", func(t *testing.T) {
		err := repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
			if err := tx.CreatePhoto(ctx, first); err != nil {
				return err
			}
			return tx.CreatePhoto(ctx, second)
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
		require.NoError(t, err)
		require.Len(t, photos, 2)
		assert.Equal(t, first.ID, photos[0].ID)
	})

	t.Run("second principal rejected by index", func(t *testing.T) {
		err := repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
			return tx.CreatePhoto(ctx, photoFor(place.ID, true, 5))
		})
		require.Error(t, err)

		photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
		require.NoError(t, err)
		assert.Len(t, photos, 2)
	})

	t.Run("swap principal demote first", func(t *testing.T) {
		err := repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
			demoted := *first
			demoted.IsPrincipal = false
			demoted.Order = 2
			if err := tx.UpdatePhoto(ctx, &demoted); err != nil {
				return err
			}
			promoted := *second
			promoted.IsPrincipal = true
			return tx.UpdatePhoto(ctx, &promoted)
		})
		require.NoError(t, err)

		photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, photos[0].ID)
		assert.True(t, photos[0].IsPrincipal)
		assert.False(t, photos[1].IsPrincipal)
	})

	t.Run("rollback on callback error", func(t *testing.T) {
		err := repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
			if err := tx.DeletePhoto(ctx, first.ID); err != nil {
				return err
			}
			return fmt.Errorf("abort")
		})
		require.Error(t, err)

		photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
		require.NoError(t, err)
		assert.Len(t, photos, 2)
	})

	t.Run("unknown place", func(t *testing.T) {
		err := repo.Gallery.InPlaceTx(testCtx, uuid.New(), func(ctx context.Context, tx repository.GalleryTx) error {
			return nil
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("description update", func(t *testing.T) {
		desc := "sunset over the bay"
		updated, err := repo.Gallery.UpdatePhotoDescription(testCtx, place.ID, second.ID, &desc)
		require.NoError(t, err)
		require.NotNil(t, updated.Description)
		assert.Equal(t, desc, *updated.Description)

		_, err = repo.Gallery.UpdatePhotoDescription(testCtx, place.ID, uuid.New(), &desc)
		assert.ErrorIs(t, err, models.ErrNotFound)

		other := mustCreatePlace(t, repo.Places)
		foreign := "edited through another place"
		_, err = repo.Gallery.UpdatePhotoDescription(testCtx, other.ID, second.ID, &foreign)
		assert.ErrorIs(t, err, models.ErrNotFound)

		photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
		require.NoError(t, err)
		for _, p := range photos {
			if p.ID == second.ID {
				require.NotNil(t, p.Description)
				assert.Equal(t, desc, *p.Description)
			}
		}
	})

	t.Run("principal url derived", func(t *testing.T) {
		refreshed, err := repo.Places.RefreshPrincipalPhoto(testCtx, place.ID)
		require.NoError(t, err)
		require.NotNil(t, refreshed.PrincipalPhotoURL)
		assert.Equal(t, second.URL, *refreshed.PrincipalPhotoURL)
	})
}

func TestGalleryRepo_ConcurrentWritersSerialized(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	place := mustCreatePlace(t, repo.Places)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
				photos, err := tx.ListPhotos(ctx, place.ID)
				if err != nil {
					return err
				}
				p := photoFor(place.ID, models.Principal(photos) == nil, models.MaxOrder(photos)+1)
				return tx.CreatePhoto(ctx, p)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	photos, err := repo.Gallery.ListPhotos(testCtx, place.ID)
	require.NoError(t, err)
	require.Len(t, photos, 8)

	principals := 0
	orders := map[int]bool{}
	for _, p := range photos {
		if p.IsPrincipal {
			principals++
		}
		orders[p.Order] = true
	}
	assert.Equal(t, 1, principals)
	assert.Len(t, orders, 8)
}

func TestExperienceRepo(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	place := mustCreatePlace(t, repo.Places)

	newExperience := func(state models.ExperienceState, placeID *uuid.UUID) *models.Experience {
		return &models.Experience{
			PhotoURL:        "http://cdn.local/experiences/" + uuid.NewString() + ".jpg",
			StoragePath:     "experiences/" + uuid.NewString() + ".jpg",
			PlaceID:         placeID,
			State:           state,
			ModerationScore: 0.5,
			ModerationCategories: &models.ModerationCategories{
				Adult: 0.1, Violence: 0.2, Suggestive: 0.3,
			},
			TextFlags: []string{"spam"},
		}
	}

	pending := newExperience(models.StatePending, &place.ID)
	require.NoError(t, repo.Experiences.CreateExperience(testCtx, pending))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.Experiences.GetExperience(testCtx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, got.State)
		require.NotNil(t, got.ModerationCategories)
		assert.Equal(t, 0.2, got.ModerationCategories.Violence)
		assert.Equal(t, []string{"spam"}, got.TextFlags)
		assert.Nil(t, got.DecidedAt)
	})

	t.Run("unknown place", func(t *testing.T) {
		missing := uuid.New()
		err := repo.Experiences.CreateExperience(testCtx, newExperience(models.StatePending, &missing))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("decide only once", func(t *testing.T) {
		decided, ok, err := repo.Experiences.DecideIfPending(testCtx, pending.ID, models.StateApproved, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, models.StateApproved, decided.State)
		assert.NotNil(t, decided.DecidedAt)

		current, ok, err := repo.Experiences.DecideIfPending(testCtx, pending.ID, models.StateRejected, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, models.StateApproved, current.State)

		_, _, err = repo.Experiences.DecideIfPending(testCtx, uuid.New(), models.StateRejected, time.Now())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("views and stats", func(t *testing.T) {
		rejected := newExperience(models.StateRejected, nil)
		require.NoError(t, repo.Experiences.CreateExperience(testCtx, rejected))

		require.NoError(t, repo.Experiences.AddViews(testCtx, pending.ID, 3))
		require.NoError(t, repo.Experiences.AddViews(testCtx, rejected.ID, 2))
		assert.ErrorIs(t, repo.Experiences.AddViews(testCtx, uuid.New(), 1), models.ErrNotFound)

		stats, err := repo.Experiences.Stats(testCtx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.CountsByState[models.StateApproved])
		assert.Equal(t, int64(1), stats.CountsByState[models.StateRejected])
		assert.Equal(t, int64(0), stats.CountsByState[models.StatePending])
		assert.Equal(t, int64(5), stats.TotalViews)
	})

	t.Run("list approved newest first with place filter", func(t *testing.T) {
		other := mustCreatePlace(t, repo.Places)
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Experiences.CreateExperience(testCtx, newExperience(models.StateApproved, &other.ID)))
		}

		items, total, err := repo.Experiences.ListByState(testCtx, models.StateApproved, models.ExperienceFilter{
			PlaceID: &other.ID, Page: 1, Limit: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 2)
		assert.False(t, items[0].CreatedAt.Before(items[1].CreatedAt))

		all, total, err := repo.Experiences.ListByState(testCtx, models.StateApproved, models.ExperienceFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, all, 4)
	})

	t.Run("place deletion orphans experience", func(t *testing.T) {
		_, err := repo.Places.DeletePlace(testCtx, place.ID)
		require.NoError(t, err)

		got, err := repo.Experiences.GetExperience(testCtx, pending.ID)
		require.NoError(t, err)
		assert.False(t, got.PlaceKnown())
	})
}

func TestPlaceRepo_Ratings(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	place := mustCreatePlace(t, repo.Places)

	for _, score := range []int{5, 4, 4} {
		_, _, err := repo.Places.AddRating(testCtx, models.Rating{
			PlaceID: place.ID,
			Author:  gofakeit.Name(),
			Score:   score,
		})
		require.NoError(t, err)
	}

	got, err := repo.Places.GetPlace(testCtx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalRatings)
	assert.InDelta(t, 4.33, got.AverageRating, 0.001)

	again, err := repo.Places.RecomputeRatingRollup(testCtx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AverageRating, again.AverageRating)
	assert.Equal(t, got.TotalRatings, again.TotalRatings)

	ratings, total, err := repo.Places.ListRatings(testCtx, place.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, ratings, 2)

	_, _, err = repo.Places.AddRating(testCtx, models.Rating{PlaceID: uuid.New(), Author: "x", Score: 3})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.Places.RecomputeRatingRollup(testCtx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBlobRepo_ReferencedPaths(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	place := mustCreatePlace(t, repo.Places)

	photo := photoFor(place.ID, true, 0)
	require.NoError(t, repo.Gallery.InPlaceTx(testCtx, place.ID, func(ctx context.Context, tx repository.GalleryTx) error {
		return tx.CreatePhoto(ctx, photo)
	}))

	exp := &models.Experience{
		PhotoURL:    "http://cdn.local/experiences/a.jpg",
		StoragePath: "experiences/a.jpg",
		State:       models.StatePending,
	}
	require.NoError(t, repo.Experiences.CreateExperience(testCtx, exp))

	refs, err := repo.Blobs.ReferencedPaths(testCtx, []string{photo.StoragePath, "experiences/a.jpg", "orphan.jpg"})
	require.NoError(t, err)
	assert.True(t, refs[photo.StoragePath])
	assert.True(t, refs["experiences/a.jpg"])
	assert.False(t, refs["orphan.jpg"])

	paths, err := repo.Places.DeletePlace(testCtx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{photo.StoragePath}, paths)

	_, err = repo.Places.DeletePlace(testCtx, place.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
