package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/polymesh/meshview/internal/backend"
	"github.com/polymesh/meshview/internal/blocklog"
	"github.com/polymesh/meshview/internal/config"
	"github.com/polymesh/meshview/internal/database"
	"github.com/polymesh/meshview/internal/database/repository"
	"github.com/polymesh/meshview/internal/logging"
	"github.com/polymesh/meshview/internal/metrics"
	"github.com/polymesh/meshview/internal/prefs"
	"github.com/polymesh/meshview/internal/tui"
)

func main() {
	headless := flag.Bool("headless", false, "print blocks to stdout instead of starting the UI")
	nodeFlag := flag.String("node", "", "node URL or preset name (overrides the saved one)")
	reset := flag.Bool("reset", false, "wipe saved state and session history, then exit")
	sessions := flag.Int("sessions", 0, "print the N most recent sessions, then exit")
	initConfig := flag.Bool("init-config", false, "write the effective config to the config file, then exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *initConfig {
		if err := config.Save(cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
		fmt.Println("wrote", config.Path())
		return
	}

	logger, closeLog := newLogger(cfg, *headless)
	defer closeLog()

	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// repositories
	stateRepo := repository.NewStateRepo(db)
	sessionRepo := repository.NewSessionRepo(db)

	switch {
	case *reset:
		if err := database.Reset(ctx, db); err != nil {
			log.Fatalf("reset: %v", err)
		}
		fmt.Println("state cleared")
		return
	case *sessions > 0:
		if err := printSessions(ctx, os.Stdout, sessionRepo, *sessions); err != nil {
			log.Fatalf("sessions: %v", err)
		}
		return
	}

	if n, err := sessionRepo.Prune(ctx, cfg.Database.KeepSessions); err != nil {
		logger.Warn().Err(err).Msg("prune sessions")
	} else if n > 0 {
		logger.Debug().Int64("pruned", n).Msg("old sessions removed")
	}

	store := prefs.NewStore(stateRepo, prefs.AppState{URL: cfg.Node.URL})
	state, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("using default app state")
	}
	if *nodeFlag != "" {
		node, err := config.ResolveNode(*nodeFlag, cfg.Node.Presets)
		if err != nil {
			log.Fatalf("node: %v", err)
		}
		state.URL = node.URL
	}

	m := metrics.New(nil)
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, m, logger); err != nil {
			logger.Error().Err(err).Msg("metrics listener")
		}
	}()

	opts := backend.Options{
		Logger:     logger,
		Sessions:   sessionRepo,
		Metrics:    m,
		RetryDelay: cfg.Node.RetryDelay,
	}

	if *headless {
		runHeadless(ctx, os.Stdout, backend.New(ctx, state.URL, opts))
		return
	}

	connect := func(ctx context.Context, url string) tui.Source {
		return backend.New(ctx, url, opts)
	}
	app := tui.New(ctx, cfg, state, connect,
		tui.WithLogger(logger),
		tui.WithStore(store),
		tui.WithDevBuild(isDevBuild()),
	)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		logger.Error().Err(err).Msg("ui exited")
	}

	// persist on shutdown
	if err := store.Save(context.WithoutCancel(ctx), app.State()); err != nil {
		logger.Error().Err(err).Msg("save app state")
	}
}

func newLogger(cfg config.Config, headless bool) (zerolog.Logger, func()) {
	if headless {
		return logging.NewConsole(os.Stderr, cfg.Log.Level), func() {}
	}
	l, closer, err := logging.OpenFile(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		log.Printf("warn: logging disabled: %v", err)
		return zerolog.Nop(), func() {}
	}
	return l, func() { _ = closer.Close() }
}

// runHeadless prints one "number: hash" line per block until ctx is done or
// the backend gives up.
func runHeadless(ctx context.Context, w io.Writer, b *backend.Backend) {
	defer b.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Updates():
			if !ok {
				return
			}
			if nb, isBlock := msg.(backend.NewBlock); isBlock {
				fmt.Fprintln(w, blocklog.FromHeader(nb.Header, time.Now()).String())
			}
		}
	}
}

func printSessions(ctx context.Context, w io.Writer, repo *repository.SessionRepo, n int) error {
	list, err := repo.Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, s := range list {
		reason := "running"
		if s.StopReason != nil {
			reason = *s.StopReason
		}
		fmt.Fprintf(w, "%s  %s  %-30s  %-12s  blocks=%d  %s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.ID[:8], s.URL, s.Chain, s.BlocksSeen, reason)
	}
	return nil
}

func isDevBuild() bool {
	info, ok := debug.ReadBuildInfo()
	return !ok || info.Main.Version == "" || info.Main.Version == "(devel)"
}
