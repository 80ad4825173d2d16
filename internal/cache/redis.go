// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for auction action logs.
var DefaultQueueName = "pokebid_actions"

// speciesTTL bounds how long a cached PokeAPI response is reused. The
// upstream catalog is effectively immutable, so this is generous.
const speciesTTL = 24 * time.Hour

// ErrCacheMiss is returned when a species is not in the cache.
var ErrCacheMiss = errors.New("species not cached")

// AuctionActionRecord holds the minimal info the historian service needs to
// persist one auction action (nominate, bid, pass, expire, settle).
type AuctionActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorPlayerID uuid.UUID              `json:"actor_player_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishAuctionAction serializes the record and pushes it onto the historian
// queue. Callers treat failures as non-fatal; the action log is best-effort.
func PublishAuctionAction(ctx context.Context, record AuctionActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal AuctionActionRecord: %w", err)
	}

	queueName := getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// GetSpecies loads a cached PokeAPI response into dst. Returns ErrCacheMiss
// when the key is absent (or Redis is not connected).
func GetSpecies(ctx context.Context, key string, dst interface{}) error {
	if Rdb == nil {
		return ErrCacheMiss
	}
	raw, err := Rdb.Get(ctx, speciesKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// SetSpecies stores a PokeAPI response under the given key.
func SetSpecies(ctx context.Context, key string, v interface{}) error {
	if Rdb == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Rdb.Set(ctx, speciesKey(key), raw, speciesTTL).Err()
}

func speciesKey(key string) string {
	return "pokebid:species:" + key
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
