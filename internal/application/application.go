package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/itbasis/go-clock"
	"go.uber.org/zap"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/config"
	"github.com/herodraft/draft-server/internal/httpapi"
	"github.com/herodraft/draft-server/internal/hub"
	"github.com/herodraft/draft-server/internal/session"
	"github.com/herodraft/draft-server/internal/store"
	"github.com/herodraft/draft-server/internal/ws"
)

// API is the HTTP + WebSocket draft server application.
type API struct {
	cfg *config.Config
	srv *http.Server
	hub *hub.Hub
	log *zap.Logger
}

// NewAPI validates config, opens the database, loads the hero catalog and
// wires the hub, HTTP API and websocket transport.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st, err := store.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := st.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cat, err := loadCatalog(st, logger)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	h := hub.NewHub(context.Background(), hub.Config{
		Rules: session.Rules{
			BanTimer:   cfg.BanTimer,
			PickTimer:  cfg.PickTimer,
			GraceDelay: cfg.GraceDelay,
			FlipDelay:  cfg.FlipDelay,
		},
		Pattern:  cfg.Pattern(),
		Catalog:  cat,
		Recorder: st,
		Clock:    clock.New(),
		Log:      logger,
	})

	api := httpapi.NewAPI(h, st, cat, logger)
	router := httpapi.Routes(api, ws.Handler(h, logger), logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, hub: h, log: logger}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down the server and every live session.
func (a *API) Run(ctx context.Context) error {
	a.log.Info("draft server listening",
		zap.String("addr", a.srv.Addr),
		zap.String("env", a.cfg.AppEnv),
	)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")

	a.hub.Inbox() <- hub.ShutdownHub{}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	_ = a.log.Sync()
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.AppEnv == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadCatalog prefers the seeded heroes table; an empty table falls back to
// the built-in roster so a fresh deployment is usable before seeding.
func loadCatalog(st *store.Store, log *zap.Logger) (*catalog.Catalog, error) {
	heroes, err := st.ListHeroes(context.Background())
	if err != nil {
		return nil, err
	}
	if len(heroes) == 0 {
		log.Warn("heroes table empty, using built-in roster")
		heroes = catalog.Defaults
	}
	return catalog.New(heroes)
}
