package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupSet заливает ids в общий Redis-set, если он пуст.
// Только один инстанс делает это одновременно (SetNX-блокировка).
func WarmupSet(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	ids []string,
	setKey string,
	lockKey string,
) error {
	// 1. Распределенная блокировка, чтобы только один инстанс обновлял Redis
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return err // Либо ошибка сети, либо другой уже греет set
	}

	// 2. Проверка наполненности Redis
	count, err := rdb.SCard(ctx, setKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", setKey), zap.Error(err))
	}

	// 3. Redis пуст, а локально есть что залить
	if count == 0 && len(ids) > 0 {
		logger.Info("redis set is empty, performing warm-up from registry",
			zap.String("key", setKey), zap.Int("count", len(ids)))

		pipe := rdb.Pipeline()
		for _, id := range ids {
			pipe.SAdd(ctx, setKey, id)
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	return nil
}
