package repository

import (
	"context"
	"errors"
	"fmt"

	redisapp "tourism_media/internal/storage/redis"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	viewKeyPrefix = "experience:views:"
	dirtyViewsKey = "experience:views:dirty"
)

// RedisViewRepo копит просмотры в Redis до переноса в Postgres
type RedisViewRepo struct {
	Client *redisapp.Client
}

func NewRedisViewRepo(client *redisapp.Client) *RedisViewRepo {
	return &RedisViewRepo{Client: client}
}

// Increment атомарно увеличивает счетчик и помечает заявку грязной
func (r *RedisViewRepo) Increment(ctx context.Context, id uuid.UUID) error {
	const op = "repository.RedisViewRepo.Increment"

	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, viewKey(id))
		pipe.SAdd(ctx, dirtyViewsKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Drain забирает до limit накопленных счетчиков.
// Пометка снимается до чтения счетчика, поэтому параллельный Increment не теряется.
func (r *RedisViewRepo) Drain(ctx context.Context, limit int64) (map[uuid.UUID]int64, error) {
	const op = "repository.RedisViewRepo.Drain"

	members, err := r.Client.SRandMemberN(ctx, dirtyViewsKey, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	drained := make(map[uuid.UUID]int64, len(members))
	for _, member := range members {
		if err := r.Client.SRem(ctx, dirtyViewsKey, member).Err(); err != nil {
			return drained, fmt.Errorf("%s: %w", op, err)
		}

		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}

		n, err := r.Client.GetDel(ctx, viewKey(id)).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return drained, fmt.Errorf("%s: %w", op, err)
		}
		if n > 0 {
			drained[id] = n
		}
	}

	return drained, nil
}

// Restore возвращает счетчик в буфер после неудачного переноса
func (r *RedisViewRepo) Restore(ctx context.Context, id uuid.UUID, n int64) error {
	const op = "repository.RedisViewRepo.Restore"

	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, viewKey(id), n)
		pipe.SAdd(ctx, dirtyViewsKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func viewKey(id uuid.UUID) string {
	return viewKeyPrefix + id.String()
}
