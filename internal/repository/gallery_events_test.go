package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	redisapp "tourism_media/internal/storage/redis"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisGalleryEvents_PublishInvalidate(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	events := NewRedisGalleryEvents(discardLogger(), redisapp.Wrap(db))
	placeID := uuid.New()

	t.Run("published", func(t *testing.T) {
		mock.ExpectPublish(galleryInvalidateChannel, placeID.String()).SetVal(2)

		require.NoError(t, events.PublishInvalidate(ctx, placeID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		mock.ExpectPublish(galleryInvalidateChannel, placeID.String()).SetErr(errors.New("connection refused"))

		err := events.PublishInvalidate(ctx, placeID)
		assert.ErrorContains(t, err, "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHandleInvalidate(t *testing.T) {
	placeID := uuid.New()

	var evicted []uuid.UUID
	evict := func(id uuid.UUID) { evicted = append(evicted, id) }

	handleInvalidate(discardLogger(), placeID.String(), evict)
	handleInvalidate(discardLogger(), "not-a-uuid", evict)

	assert.Equal(t, []uuid.UUID{placeID}, evicted)
}
