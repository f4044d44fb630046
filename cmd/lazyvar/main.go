package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rebeliceyang/lazyvar/internal/app"
	"github.com/rebeliceyang/lazyvar/internal/config"
	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/fields"
	"github.com/rebeliceyang/lazyvar/internal/history"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/profile"
	"github.com/rebeliceyang/lazyvar/internal/query"
	"github.com/rebeliceyang/lazyvar/internal/valuelist"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	analysis   string
	user       string
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:           "lazyvar",
		Short:         "Browse a genomic variant warehouse with composable filters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to the configuration file")
	cmd.Flags().StringVar(&opts.analysis, "analysis", "", "analysis to open")
	cmd.Flags().StringVar(&opts.user, "user", "", "user owning value lists and profiles")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.user != "" {
		cfg.General.User = opts.user
	}
	if opts.analysis != "" {
		cfg.General.Analysis = opts.analysis
	}
	if cfg.General.User == "" {
		cfg.General.User = os.Getenv("USER")
	}

	if err := os.MkdirAll(cfg.Profiles.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logFile, err := tea.LogToFile(filepath.Join(cfg.Profiles.Dir, "lazyvar.log"), "lazyvar")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	if err := config.NewPasswordStore().FillPassword(&cfg.Store); err != nil {
		log.Printf("Warning: %v", err)
	}
	if cfg.Store.Compression {
		log.Printf("Compression requested; the %s driver does not support it", cfg.Store.Driver)
	}

	var recorder connection.Recorder
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = store.Close() }()
		if cfg.History.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.History.RetentionDays)
			if n, err := store.Prune(cutoff); err != nil {
				log.Printf("Failed to prune history: %v", err)
			} else if n > 0 {
				log.Printf("Pruned %d history entries", n)
			}
		}
		recorder = store
	}

	var metrics *connection.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		metrics = connection.NewMetrics(reg)
		go serveMetrics(cfg.Metrics.Listen, reg)
	}

	gateway, err := connection.Open(ctx, cfg.Store, recorder, metrics)
	if err != nil {
		return err
	}
	defer gateway.Close()

	registry, err := fields.Load(ctx, gateway)
	if err != nil {
		log.Printf("Fatal: %v", err)
		return err
	}
	analysis, err := pickAnalysis(registry, cfg.General.Analysis)
	if err != nil {
		log.Printf("Fatal: %v", err)
		return err
	}

	profiles, err := profile.NewStore(cfg.Profiles.Dir, cfg.General.User)
	if err != nil {
		return err
	}

	resolver := valuelist.NewResolver(valuelist.NewSQLStore(gateway, models.SchemaUsers))
	session := app.New(cfg, app.Deps{
		Registry: registry,
		Engine:   query.NewEngine(gateway, query.NewCompiler(registry, resolver)),
		Gateway:  gateway,
		Profiles: profiles,
		Analysis: analysis,
	})

	log.Printf("Opened analysis %s as %s", analysis, cfg.General.User)
	p := tea.NewProgram(session, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func pickAnalysis(registry *fields.Registry, name string) (models.Analysis, error) {
	if name != "" {
		return registry.Analysis(name)
	}
	analyses := registry.Analyses()
	if len(analyses) == 0 {
		return models.Analysis{}, &fields.ConfigurationError{Err: errors.New("no analysis available")}
	}
	return analyses[0], nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}
