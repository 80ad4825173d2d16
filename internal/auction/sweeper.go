// internal/auction/sweeper.go
package auction

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/models"
)

// StartStaleLotSweeper runs a periodic job that expires lots whose turn clock
// stopped moving, e.g. after a server restart dropped the in-memory timers.
// A lot is stale once its last bid is older than several full turn windows
// and no live engine is tracking its game. Returns the scheduler so the
// caller can shut it down.
func StartStaleLotSweeper(registry *Registry, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sweepStaleLots(context.Background(), registry)
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

func sweepStaleLots(ctx context.Context, registry *Registry) {
	// Three full turn windows of silence means the engine that owned the
	// lot is gone; a live engine would have passed or settled long before.
	cutoff := time.Now().UTC().Add(-3 * DefaultTurnSeconds * time.Second)

	lots, err := database.ListStaleActiveLots(ctx, cutoff)
	if err != nil {
		logrus.Warnf("stale lot sweep failed: %v", err)
		return
	}

	for _, lot := range lots {
		if _, live := registry.Get(lot.GameID); live {
			continue
		}
		ok, err := database.CompleteLot(ctx, lot.ID, models.AuctionStatusExpired)
		if err != nil {
			logrus.Warnf("failed to expire stale lot %s: %v", lot.ID, err)
			continue
		}
		if ok {
			logrus.Infof("expired stale lot %s (game %s, pokemon %s)", lot.ID, lot.GameID, lot.PokemonName)
		}
	}
}
