package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"autolike_bot/internal/config"
	"autolike_bot/internal/gesture"
	"autolike_bot/internal/onebot"
	"autolike_bot/internal/state"
	"autolike_bot/internal/storage"
	"autolike_bot/pkg/logger"
	"autolike_bot/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// globals is what every subcommand gets from main.
type globals struct {
	envFile string
}

// app is the wiring shared by the subcommands that touch the remote side.
type app struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	level   zap.AtomicLevel
	journal storage.Journal // nil when DB_PATH is empty
	client  *onebot.Client
}

func setup(g *globals) (*app, error) {
	cfg, err := config.Load(g.envFile)
	if err != nil {
		return nil, err
	}
	log, level := logger.New(cfg.LogLevel)

	a := &app{cfg: cfg, log: log, level: level}
	if cfg.DBPath != "" {
		j, err := storage.NewSQLite(cfg.DBPath)
		if err != nil {
			logger.Sync(log)
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}
	a.client = onebot.New(
		onebot.WithBaseURL(cfg.HTTPURL),
		onebot.WithAccessToken(cfg.AccessToken),
		onebot.WithRateLimit(cfg.RateLimit, cfg.RateLimit),
		onebot.WithLogger(log),
	)
	return a, nil
}

// openState opens the state store. The plugin's debug switch overrides
// LOG_LEVEL while it is on.
func (a *app) openState(ctx context.Context) (*state.Store, error) {
	base := logger.ParseLevel(a.cfg.LogLevel)
	return state.Open(ctx, state.Runtime{
		Log:        a.log,
		ConfigPath: a.cfg.ConfigPath,
		DataDir:    a.cfg.DataDir,
		Bridge:     a.client,
	},
		state.WithJournal(a.journal),
		state.WithDebugSwitch(func(debug bool) {
			if debug {
				a.level.SetLevel(zap.DebugLevel)
				return
			}
			a.level.SetLevel(base)
		}),
	)
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warnw("journal close error", "err", err)
		}
	}
	logger.Sync(a.log)
}

// RunCmd is the long-running mode.
type RunCmd struct{}

func (RunCmd) Run(g *globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	log.Infow("starting autolike-bot", "version", a.cfg.Version, "onebot", a.cfg.HTTPURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv interface{ Shutdown(context.Context) error }
	if a.cfg.MetricsAddr != "" {
		metricsSrv = metrics.MustServe(a.cfg.MetricsAddr, log)
	}

	store, err := a.openState(ctx)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	handler := gesture.NewHandler(store, a.client, log, gesture.WithJournal(a.journal))
	listener := onebot.NewListener(a.cfg.WSURL, a.cfg.AccessToken, func(ctx context.Context, raw []byte) {
		handler.HandleEvent(ctx, raw)
	}, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("event listener stopped", "err", err)
		}
	}()
	log.Infow("listening for events", "ws", a.cfg.WSURL)

	<-ctx.Done()
	log.Info("shutdown signal received, shutting down ...")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := saveRunInfo(store, a.cfg.Version); err != nil {
		log.Warnw("save run info", "err", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Warnw("state close error", "err", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("metrics server shutdown error", "err", err)
		}
	}

	log.Info("bye")
	return nil
}

// LikeNowCmd runs a single proactive-like pass over the configured targets,
// even when the scheduled job is switched off.
type LikeNowCmd struct{}

func (LikeNowCmd) Run(g *globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openState(ctx)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close(context.Background())

	report, err := store.ExecuteAutoLikeNow(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("targets=%d sent=%d failed=%d\n", report.Targets, report.Sent, report.Failed)
	if report.Targets > 0 && report.Sent == 0 {
		return errors.New("no like was sent")
	}
	return nil
}

// HistoryCmd prints the journal, newest first.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of entries to show" default:"20"`
}

func (c HistoryCmd) Run(g *globals) error {
	cfg, err := config.Load(g.envFile)
	if err != nil {
		return err
	}
	if cfg.DBPath == "" {
		return errors.New("journal disabled: DB_PATH is empty")
	}
	j, err := storage.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(context.Background(), c.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tUSER\tGROUP\tOK\tDETAIL")
	for _, e := range entries {
		group := "-"
		if e.GroupID != 0 {
			group = fmt.Sprint(e.GroupID)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.UserID, group, e.OK, e.Detail)
	}
	return w.Flush()
}
