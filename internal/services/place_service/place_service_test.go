package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tourism_media/internal/domain/models"
	rootstorage "tourism_media/internal/storage"
	"tourism_media/internal/transport/http/dto"
)

type MockPlaceRepository struct {
	mock.Mock
}

func (m *MockPlaceRepository) CreatePlace(ctx context.Context, place models.Place) (models.Place, error) {
	args := m.Called(ctx, place)
	return args.Get(0).(models.Place), args.Error(1)
}

func (m *MockPlaceRepository) GetPlace(ctx context.Context, id uuid.UUID) (models.Place, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Place), args.Error(1)
}

func (m *MockPlaceRepository) DeletePlace(ctx context.Context, id uuid.UUID) ([]string, error) {
	args := m.Called(ctx, id)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

func (m *MockPlaceRepository) AddRating(ctx context.Context, rating models.Rating) (models.Rating, models.Place, error) {
	args := m.Called(ctx, rating)
	return args.Get(0).(models.Rating), args.Get(1).(models.Place), args.Error(2)
}

func (m *MockPlaceRepository) RecomputeRatingRollup(ctx context.Context, placeID uuid.UUID) (models.Place, error) {
	args := m.Called(ctx, placeID)
	return args.Get(0).(models.Place), args.Error(1)
}

func (m *MockPlaceRepository) RefreshPrincipalPhoto(ctx context.Context, placeID uuid.UUID) (models.Place, error) {
	args := m.Called(ctx, placeID)
	return args.Get(0).(models.Place), args.Error(1)
}

func (m *MockPlaceRepository) ListRatings(ctx context.Context, placeID uuid.UUID, page, limit int) ([]models.Rating, int, error) {
	args := m.Called(ctx, placeID, page, limit)
	ratings, _ := args.Get(0).([]models.Rating)
	return ratings, args.Int(1), args.Error(2)
}

type MockFileStorage struct {
	mock.Mock
}

func (m *MockFileStorage) Save(ctx context.Context, r io.Reader, subPath, filename string) (string, int64, error) {
	args := m.Called(ctx, r, subPath, filename)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockFileStorage) Delete(ctx context.Context, filePath string) error {
	return m.Called(ctx, filePath).Error(0)
}

func (m *MockFileStorage) URL(p string) string { return m.Called(p).String(0) }

type MockGalleryCache struct {
	mock.Mock
}

func (m *MockGalleryCache) PlaceRemoved(ctx context.Context, placeID uuid.UUID) {
	m.Called(ctx, placeID)
}

func newPlaceService() (*PlaceService, *MockPlaceRepository, *MockFileStorage) {
	repo := new(MockPlaceRepository)
	files := new(MockFileStorage)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPlaceService(log, repo, files), repo, files
}

func TestPlaceService_CreatePlace(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, repo, _ := newPlaceService()
		req := dto.CreatePlaceRequest{
			Name:        gofakeit.City() + " Old Town",
			Description: "  walled medieval quarter ",
			Location:    gofakeit.Country(),
			Category:    "landmark",
		}

		repo.On("CreatePlace", mock.Anything, mock.MatchedBy(func(p models.Place) bool {
			return p.Name == req.Name && p.Description != nil && *p.Description == "walled medieval quarter"
		})).Return(models.Place{ID: uuid.New(), Name: req.Name}, nil).Once()

		place, err := svc.CreatePlace(context.Background(), req)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, place.ID)
		repo.AssertExpectations(t)
	})

	t.Run("validation", func(t *testing.T) {
		svc, repo, _ := newPlaceService()

		_, err := svc.CreatePlace(context.Background(), dto.CreatePlaceRequest{Name: " "})
		assert.ErrorIs(t, err, models.ErrValidation)
		repo.AssertNotCalled(t, "CreatePlace", mock.Anything, mock.Anything)
	})
}

func TestPlaceService_DeletePlace(t *testing.T) {
	t.Run("blobs removed best effort", func(t *testing.T) {
		svc, repo, files := newPlaceService()
		id := uuid.New()

		repo.On("DeletePlace", mock.Anything, id).Return([]string{"places/a.jpg", "places/b.jpg", "places/c.jpg"}, nil)
		files.On("Delete", mock.Anything, "places/a.jpg").Return(nil)
		files.On("Delete", mock.Anything, "places/b.jpg").Return(errors.New("permission denied"))
		files.On("Delete", mock.Anything, "places/c.jpg").Return(rootstorage.ErrFileNotFound)

		require.NoError(t, svc.DeletePlace(context.Background(), id))
		files.AssertNumberOfCalls(t, "Delete", 3)
	})

	t.Run("gallery cache dropped", func(t *testing.T) {
		svc, repo, files := newPlaceService()
		galleries := new(MockGalleryCache)
		svc.SetGalleryCache(galleries)
		id := uuid.New()

		repo.On("DeletePlace", mock.Anything, id).Return([]string{"places/a.jpg"}, nil)
		files.On("Delete", mock.Anything, "places/a.jpg").Return(nil)
		galleries.On("PlaceRemoved", mock.Anything, id).Once()

		require.NoError(t, svc.DeletePlace(context.Background(), id))
		galleries.AssertExpectations(t)
	})

	t.Run("unknown place", func(t *testing.T) {
		svc, repo, files := newPlaceService()
		galleries := new(MockGalleryCache)
		svc.SetGalleryCache(galleries)
		id := uuid.New()

		repo.On("DeletePlace", mock.Anything, id).Return(nil, models.ErrNotFound)

		assert.ErrorIs(t, svc.DeletePlace(context.Background(), id), models.ErrNotFound)
		files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		galleries.AssertNotCalled(t, "PlaceRemoved", mock.Anything, mock.Anything)
	})
}

func TestPlaceService_AddRating(t *testing.T) {
	placeID := uuid.New()

	tests := []struct {
		name    string
		req     dto.AddRatingRequest
		wantErr error
	}{
		{name: "valid", req: dto.AddRatingRequest{Author: "ana", Score: 5, Comment: "great view"}},
		{name: "score too high", req: dto.AddRatingRequest{Author: "ana", Score: 6}, wantErr: models.ErrValidation},
		{name: "score too low", req: dto.AddRatingRequest{Author: "ana", Score: 0}, wantErr: models.ErrValidation},
		{name: "missing author", req: dto.AddRatingRequest{Score: 3}, wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newPlaceService()

			if tt.wantErr == nil {
				repo.On("AddRating", mock.Anything, mock.AnythingOfType("models.Rating")).
					Return(models.Rating{ID: uuid.New(), PlaceID: placeID, Score: tt.req.Score},
						models.Place{ID: placeID, AverageRating: 5, TotalRatings: 1}, nil)
			}

			rating, place, err := svc.AddRating(context.Background(), placeID, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "AddRating", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.req.Score, rating.Score)
			assert.Equal(t, 1, place.TotalRatings)
		})
	}
}

func TestPlaceService_ListRatings_NormalizesPage(t *testing.T) {
	svc, repo, _ := newPlaceService()
	placeID := uuid.New()

	repo.On("GetPlace", mock.Anything, placeID).Return(models.Place{ID: placeID}, nil)
	repo.On("ListRatings", mock.Anything, placeID, 1, models.DefaultPageLimit).
		Return([]models.Rating{{ID: uuid.New()}}, 1, nil)

	page, err := svc.ListRatings(context.Background(), placeID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, models.DefaultPageLimit, page.Limit)
	assert.Equal(t, 1, page.Total)
	assert.Len(t, page.Items, 1)
}

func TestPlaceService_PrincipalChanged(t *testing.T) {
	svc, repo, _ := newPlaceService()
	placeID := uuid.New()
	url := "http://cdn.test/places/a.jpg"

	repo.On("RefreshPrincipalPhoto", mock.Anything, placeID).
		Return(models.Place{ID: placeID, PrincipalPhotoURL: &url}, nil).Once()
	require.NoError(t, svc.PrincipalChanged(context.Background(), placeID))

	repo.On("RefreshPrincipalPhoto", mock.Anything, placeID).
		Return(models.Place{}, models.ErrNotFound).Once()
	assert.ErrorIs(t, svc.PrincipalChanged(context.Background(), placeID), models.ErrNotFound)
}

func TestPlaceService_RecomputeRatingRollup(t *testing.T) {
	svc, repo, _ := newPlaceService()
	placeID := uuid.New()

	repo.On("RecomputeRatingRollup", mock.Anything, placeID).
		Return(models.Place{ID: placeID, AverageRating: 3.67, TotalRatings: 3}, nil).Twice()

	first, err := svc.RecomputeRatingRollup(context.Background(), placeID)
	require.NoError(t, err)
	second, err := svc.RecomputeRatingRollup(context.Background(), placeID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
