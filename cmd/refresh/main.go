// Command refresh runs one full catalog refresh synchronously: ranked dump,
// tracked collections, details, cleanup. It is intended to be invoked by an
// external cron job, not as an in-process goroutine.
//
// Flags:
//
//	--n          how many top-ranked games to ingest (default: config)
//	--batch      detail batch size (default: config)
//	--ranks-url  ranked dump URL (default: config)
//	--timeout    overall run timeout (default: 2h)
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/adapter/bgg"
	"github.com/heartmarshall/bggcatalog/internal/adapter/postgres"
	collectionrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/collection"
	gamerepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/game"
	jobrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/job"
	trackeduserrepo "github.com/heartmarshall/bggcatalog/internal/adapter/postgres/trackeduser"
	"github.com/heartmarshall/bggcatalog/internal/app"
	"github.com/heartmarshall/bggcatalog/internal/config"
	"github.com/heartmarshall/bggcatalog/internal/domain"
	"github.com/heartmarshall/bggcatalog/internal/service/catalog"
	"github.com/heartmarshall/bggcatalog/internal/service/fetchjob"
)

func main() {
	nFlag := flag.Int("n", 0, "how many top-ranked games to ingest")
	batchFlag := flag.Int("batch", 0, "detail batch size")
	ranksURLFlag := flag.String("ranks-url", "", "ranked dump URL")
	timeoutFlag := flag.Duration("timeout", 2*time.Hour, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
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

	job, err := jobSvc.StartRefresh(ctx, *nFlag, *batchFlag, *ranksURLFlag)
	if err != nil {
		logger.Error("start refresh", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !jobSvc.Wait(*timeoutFlag) {
		logger.Error("refresh timed out", slog.String("job_id", job.ID.String()))
		os.Exit(1)
	}

	final, err := jobSvc.Get(ctx, job.ID)
	if err != nil {
		logger.Error("load job result", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if final.Status != domain.JobStatusDone {
		msg := ""
		if final.Error != nil {
			msg = *final.Error
		}
		logger.Error("refresh failed",
			slog.String("job_id", job.ID.String()),
			slog.String("status", final.Status.String()),
			slog.String("error", msg),
		)
		os.Exit(1)
	}

	logger.Info("refresh completed",
		slog.String("job_id", job.ID.String()),
		slog.Int("progress", final.Progress),
		slog.Int("total", final.Total),
	)
}

// remoteClient adapts the concrete client's detail stream to the interface
// the job service consumes.
type remoteClient struct {
	*bgg.Client
}

func (c remoteClient) StreamDetails(ids []string, batchSize int) fetchjob.DetailStream {
	return c.Client.StreamDetails(ids, batchSize)
}
