package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/bggcatalog/internal/adapter/bgg"
	"github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	collectionrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/collection"
	gamerepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/game"
	jobrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/job"
	trackeduserrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/trackeduser"
	"github.com/heartmarshall/bggcatalog/internal/config"
	"github.com/heartmarshall/bggcatalog/internal/service/catalog"
	"github.com/heartmarshall/bggcatalog/internal/service/fetchjob"
	"github.com/heartmarshall/bggcatalog/internal/transport/middleware"
	"github.com/heartmarshall/bggcatalog/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, initializes
// the logger, connects to the database, wires the catalog and job services,
// and serves HTTP until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	games := gamerepo.New(pool)
	collections := collectionrepo.New(pool)
	jobs := jobrepo.New(pool)
	tracked := trackeduserrepo.New(pool)

	client := bgg.NewClient(cfg.BGG, logger)

	txm := postgres.NewTxManager(pool)
	catalogSvc := catalog.NewService(logger, txm, games, collections)
	jobSvc := fetchjob.NewService(logger, cfg.Catalog, jobs, catalogSvc, tracked, remoteClient{client})

	mux := http.NewServeMux()
	rest.NewHealthHandler(pool, BuildVersion()).Register(mux)
	rest.NewJobHandler(logger, jobSvc).Register(mux)
	rest.NewGameHandler(logger, catalogSvc).Register(mux)
	rest.NewTrackedUserHandler(logger, tracked).Register(mux)

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recovery(logger),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      chain(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Let in-flight jobs write their terminal status before the pool closes.
	jobSvc.Wait(cfg.Server.ShutdownTimeout)

	return nil
}

// remoteClient adapts the concrete client's detail stream to the interface
// the job service consumes.
type remoteClient struct {
	*bgg.Client
}

func (c remoteClient) StreamDetails(ids []string, batchSize int) fetchjob.DetailStream {
	return c.Client.StreamDetails(ids, batchSize)
}
