// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pokebid/pokebid/internal/auction"
	"github.com/pokebid/pokebid/internal/auth"
	"github.com/pokebid/pokebid/internal/cache"
	"github.com/pokebid/pokebid/internal/database"
	"github.com/pokebid/pokebid/internal/handlers"
	"github.com/pokebid/pokebid/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis backs the species cache and the historian queue. The server
	// still runs without it; lookups just hit the catalog directly.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable: %v", err)
	}

	srv := handlers.NewArenaServer(logger)

	// Stale lots left behind by a crashed server expire in the background.
	sweeper, err := auction.StartStaleLotSweeper(srv.Registry, time.Minute)
	if err != nil {
		log.Fatalf("failed to start stale lot sweeper: %v", err)
	}
	defer sweeper.Shutdown()

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// user endpoints
	mux.Handle("/user/create", logged(http.HandlerFunc(handlers.CreateUserHandler)))
	mux.Handle("/user/login", logged(http.HandlerFunc(handlers.LoginHandler)))
	mux.Handle("/user/me", logged(http.HandlerFunc(handlers.MeHandler)))

	// lobby and game lifecycle endpoints
	mux.Handle("/game/create", logged(http.HandlerFunc(handlers.CreateGameHandler)))
	mux.Handle("/game/join", logged(http.HandlerFunc(handlers.JoinGameHandler)))
	mux.Handle("/game/list", logged(http.HandlerFunc(handlers.ListGamesHandler)))
	mux.Handle("/game/start/", logged(handlers.StartGameHandler(srv)))
	mux.Handle("/game/end/", logged(handlers.EndGameHandler(srv)))

	// live auction websocket. Not wrapped in the logging middleware: the
	// status recorder hides the Hijacker the upgrade needs.
	mux.Handle("/game/ws/", handlers.ArenaWSHandler(logger, srv))

	// catalog browsing
	mux.Handle("/pokedex", logged(handlers.PokedexListHandler(srv)))
	mux.Handle("/pokedex/search", logged(handlers.PokedexSearchHandler(srv)))

	// player state
	mux.Handle("/collection/", logged(http.HandlerFunc(handlers.CollectionHandler)))
	mux.Handle("/balance/", logged(http.HandlerFunc(handlers.BalanceHandler)))

	// /game/{id} detail; longer patterns above take precedence.
	mux.Handle("/game/", logged(http.HandlerFunc(handlers.GetGameHandler)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
