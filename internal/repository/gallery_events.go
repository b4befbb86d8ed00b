package repository

import (
	"context"
	"fmt"
	"log/slog"

	"tourism_media/internal/lib/logger/sl"
	redisapp "tourism_media/internal/storage/redis"

	"github.com/google/uuid"
)

const galleryInvalidateChannel = "gallery:invalidate"

// RedisGalleryEvents рассылает сброс кэша галерей через Redis pub/sub
type RedisGalleryEvents struct {
	Client *redisapp.Client
	log    *slog.Logger
}

func NewRedisGalleryEvents(log *slog.Logger, client *redisapp.Client) *RedisGalleryEvents {
	return &RedisGalleryEvents{Client: client, log: log}
}

func (r *RedisGalleryEvents) PublishInvalidate(ctx context.Context, placeID uuid.UUID) error {
	const op = "repository.RedisGalleryEvents.PublishInvalidate"

	if err := r.Client.Publish(ctx, galleryInvalidateChannel, placeID.String()).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Listen блокируется до отмены ctx и передает evict каждое место из канала.
// Собственные события тоже приходят, повторный сброс безвреден.
func (r *RedisGalleryEvents) Listen(ctx context.Context, evict func(placeID uuid.UUID)) error {
	const op = "repository.RedisGalleryEvents.Listen"
	log := r.log.With(slog.String("op", op))

	sub := r.Client.Subscribe(ctx, galleryInvalidateChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			handleInvalidate(log, msg.Payload, evict)
		}
	}
}

func handleInvalidate(log *slog.Logger, payload string, evict func(placeID uuid.UUID)) {
	placeID, err := uuid.Parse(payload)
	if err != nil {
		log.Warn("malformed gallery invalidation", slog.String("payload", payload), sl.Err(err))
		return
	}
	evict(placeID)
}
