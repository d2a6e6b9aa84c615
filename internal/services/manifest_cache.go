package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ManifestCache представляет кэш ведомостей рейсов в Redis.
// Любая запись движка закрепления по рейсу сбрасывает его ключ,
// поэтому кэш никогда не переживает изменение состава рейса.
type ManifestCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	enabled     bool
}

// NewManifestCache создает кэш ведомостей. Кэширование включается
// переменной CACHE_ENABLED; при nil-клиенте кэш отключен.
func NewManifestCache(redisClient *redis.Client) *ManifestCache {
	cacheEnabled := os.Getenv("CACHE_ENABLED") == "true"

	if !cacheEnabled || redisClient == nil {
		return &ManifestCache{
			enabled: false,
		}
	}

	// Получаем TTL для кэша
	cacheDuration := os.Getenv("MANIFEST_CACHE_DURATION")
	ttl := 60 // 60 секунд по умолчанию

	if cacheDuration != "" {
		if val, err := strconv.Atoi(cacheDuration); err == nil {
			ttl = val
		}
	}

	return &ManifestCache{
		redisClient: redisClient,
		ttl:         time.Duration(ttl) * time.Second,
		enabled:     true,
	}
}

// Get получает ведомость рейса из кэша
func (c *ManifestCache) Get(ctx context.Context, tripID uint, result interface{}) (bool, error) {
	if !c.enabled {
		return false, nil
	}

	val, err := c.redisClient.Get(ctx, c.manifestKey(tripID)).Result()
	if err == redis.Nil {
		// Ключ не найден в кэше
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении данных из кэша: %w", err)
	}

	// Десериализуем данные из JSON
	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("ошибка при десериализации данных из кэша: %w", err)
	}

	return true, nil
}

// Set сохраняет ведомость рейса в кэш
func (c *ManifestCache) Set(ctx context.Context, tripID uint, value interface{}) error {
	if !c.enabled {
		return nil
	}

	// Сериализуем данные в JSON
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации данных для кэша: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.manifestKey(tripID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении данных в кэш: %w", err)
	}

	return nil
}

// Invalidate сбрасывает ведомость рейса после изменения его состава
func (c *ManifestCache) Invalidate(ctx context.Context, tripID uint) error {
	if !c.enabled {
		return nil
	}

	if err := c.redisClient.Del(ctx, c.manifestKey(tripID)).Err(); err != nil {
		return fmt.Errorf("ошибка при сбросе ключа кэша: %w", err)
	}

	return nil
}

func (c *ManifestCache) manifestKey(tripID uint) string {
	return fmt.Sprintf("manifest:trip:%d", tripID)
}

// Close закрывает соединение с Redis
func (c *ManifestCache) Close() error {
	if c.enabled {
		return c.redisClient.Close()
	}
	return nil
}
