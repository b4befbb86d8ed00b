package moderation

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/metrics"
)

// CachedScorer запоминает оценки по хэшу содержимого,
// повторная отправка тех же байтов не обращается к сервису.
// Ошибки не кэшируются.
type CachedScorer struct {
	next  Scorer
	cache *expirable.LRU[string, models.ModerationResult]
}

func NewCachedScorer(next Scorer, size int, ttl time.Duration) *CachedScorer {
	return &CachedScorer{
		next:  next,
		cache: expirable.NewLRU[string, models.ModerationResult](size, nil, ttl),
	}
}

func (c *CachedScorer) Score(ctx context.Context, img Image) (models.ModerationResult, error) {
	key := contentKey(img)

	if result, ok := c.cache.Get(key); ok {
		metrics.ModerationCacheHitsTotal.Inc()
		return result, nil
	}
	metrics.ModerationCacheMissesTotal.Inc()

	result, err := c.next.Score(ctx, img)
	if err != nil {
		return models.ModerationResult{}, err
	}

	c.cache.Add(key, result)

	return result, nil
}

func contentKey(img Image) string {
	h, _ := blake2b.New256(nil)
	h.Write(img.Data)
	h.Write([]byte{0})
	h.Write([]byte(img.MimeType))
	h.Write([]byte{0})
	h.Write([]byte(img.Text))
	return hex.EncodeToString(h.Sum(nil))
}
