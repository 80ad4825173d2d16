// cmd/historian/main.go is an asynchronous historian service that pops auction
// action records from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/pokebid/pokebid/internal/cache"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
)

// HistorianService encapsulates the Redis + DB logic for capturing auction
// actions and marking games abandoned after prolonged inactivity.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[uuid.UUID]time.Time per game

	batchMu  sync.Mutex
	batch    []cache.AuctionActionRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.AuctionActionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the queue reader and the inactivity checker and blocks until
// the context is done.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("pokebid-historian service started.")
	<-hs.ctx.Done()
	log.Println("pokebid-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve action records from the
// Redis queue, batching them for the periodic flush.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record cache.AuctionActionRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid action record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(record.GameID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record and flushes once the threshold is reached.
func (hs *HistorianService) appendToBatch(record cache.AuctionActionRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchLocked()
	}
}

// flushBatchToDB flushes the current batch under the batch lock.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchLocked()
}

// flushBatchLocked writes the batch to the database in one transaction.
// Assumes batchMu is held.
func (hs *HistorianService) flushBatchLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]cache.AuctionActionRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertAuctionActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertAuctionActionTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flush batch: %v\n", err)
	} else {
		log.Printf("Flushed %d actions to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically marks games abandoned when no action has been
// recorded within the inactivity threshold.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				gameID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markGameAbandoned(gameID)
					hs.lastActivity.Delete(gameID)
				}
				return true
			})
		}
	}
}

// markGameAbandoned flips a still in-progress game to abandoned.
func (hs *HistorianService) markGameAbandoned(gameID uuid.UUID) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE games
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`
		_, e := tx.Exec(ctx, q, gameID, models.GameStatusAbandoned, models.GameStatusInProgress)
		return e
	})
	if err != nil {
		log.Printf("failed to mark game %v abandoned: %v", gameID, err)
	} else {
		log.Printf("Marked game %v as abandoned due to inactivity.", gameID)
	}
}

// insertAuctionActionTx appends one action record to the audit log.
func insertAuctionActionTx(ctx context.Context, tx pgx.Tx, rec cache.AuctionActionRecord) error {
	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO auction_actions (
			game_id, action_index, actor_player_id, action_type, action_payload, recorded_at
		) VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
	`
	_, err = tx.Exec(ctx, q,
		rec.GameID, rec.ActionIndex, nullableUUID(rec.ActorPlayerID), rec.ActionType, jsonPayload, rec.Timestamp,
	)
	return err
}

// nullableUUID maps the zero UUID (system actions) to NULL.
func nullableUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func main() {
	hs := NewHistorianService()
	hs.Run()
}
