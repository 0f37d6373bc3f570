// Command web-demo hosts one match between two copies of a sample deck and
// serves its live feed, for trying out web clients without the full server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/server"
)

var (
	addr      = flag.String("addr", ":8080", "listen address")
	cardsPath = flag.String("cards", "data/cards.yaml", "card catalog")
	deckPath  = flag.String("deck", "data/decks/lightning.yaml", "deck list used by both players")
	matchID   = flag.String("match", "demo", "id of the hosted match")
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cards, err := catalog.Load(*cardsPath)
	if err != nil {
		logger.Fatal("failed to load card catalog", zap.Error(err))
	}
	list, err := catalog.LoadDeckList(*deckPath)
	if err != nil {
		logger.Fatal("failed to load deck list", zap.Error(err))
	}

	var decks []*model.Deck
	for _, player := range []string{"alice", "bob"} {
		deck, err := cards.BuildDeck(player, list)
		if err != nil {
			logger.Fatal("failed to build deck", zap.String("player", player), zap.Error(err))
		}
		decks = append(decks, deck)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := rules.NewEventBus()
	registry := game.NewRegistry(logger, game.WithRefereeOptions(referee.WithEventBus(bus)))
	if _, _, err := registry.Create(ctx, *matchID, decks, referee.SetupOptions{AutoActive: true}); err != nil {
		logger.Fatal("failed to create match", zap.Error(err))
	}

	hub := server.NewHub(registry, bus, logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/matches", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registry.List())
	})

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("demo match ready",
		zap.String("match_id", *matchID),
		zap.String("feed", "ws://localhost"+*addr+"/ws?match_id="+*matchID+"&player_id=alice"),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("demo server failed", zap.Error(err))
	}
}
