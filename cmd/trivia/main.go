package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/trivia/internal/bundled"
	"github.com/pavelanni/trivia/internal/handler"
	"github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/remote"
	"github.com/pavelanni/trivia/internal/repository"
	"github.com/pavelanni/trivia/internal/store"
)

const defaultManifestURL = "https://raw.githubusercontent.com/pavelanni/trivia-topics/main/topics.json"

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "trivia",
		Short:        "Trivia topics: bundled, saved and community quizzes",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, topicsCmd(), communityCmd(), parseCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every command that opens the
// repository needs.
func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "trivia.db", "SQLite database path for saved topics")
	f.StringP("lang", "l", "en", "Language of bundled topics and messages (en, es)")
	f.String("manifest-url", defaultManifestURL, "Community topic manifest URL")
	f.Duration("fetch-timeout", remote.DefaultTimeout, "Timeout for each community fetch")
	addLogFlags(f)
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /trivia)")
	f.Int("prefetch", 0, "Download all community topics at startup with this many parallel fetches (0 = on demand)")
	addCommonFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("trivia")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/trivia")
	v.AddConfigPath("/etc/trivia")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app bundles the long-lived dependencies built from configuration.
type app struct {
	db      *store.Store
	catalog *i18n.Catalog
	client  *remote.Client
	repo    *repository.Repository
}

func openApp(v *viper.Viper) (*app, error) {
	catalog, err := i18n.New(v.GetString("lang"))
	if err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	def, err := bundled.Load()
	if err != nil {
		return nil, fmt.Errorf("load bundled topics: %w", err)
	}
	appTopics, err := bundled.Topics(def, catalog)
	if err != nil {
		return nil, fmt.Errorf("resolve bundled topics: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client := remote.NewClient(v.GetString("manifest-url"), v.GetDuration("fetch-timeout"))
	repo, err := repository.New(appTopics, db, client, repository.WithLogger(slog.Default()))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create repository: %w", err)
	}

	return &app{db: db, catalog: catalog, client: client, repo: repo}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// refreshCommunity reloads the manifest and records the refresh in the
// database.
func (a *app) refreshCommunity(ctx context.Context) error {
	if err := a.repo.RefreshCommunity(ctx); err != nil {
		return err
	}
	if err := a.db.RecordCommunityRefresh(a.client.ManifestURL(), time.Now()); err != nil {
		slog.Warn("could not record community refresh", "error", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := openApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	events, unsubscribe := a.repo.Subscribe()
	defer unsubscribe()
	go func() {
		for mode := range events {
			slog.Debug("topics changed", "mode", mode)
		}
	}()

	prefetch := v.GetInt("prefetch")
	go func() {
		ctx := context.Background()
		if err := a.refreshCommunity(ctx); err != nil {
			slog.Warn("initial community refresh failed", "error", err)
			return
		}
		if prefetch > 0 {
			n, err := a.repo.PrefetchCommunity(ctx, prefetch)
			if err != nil {
				slog.Warn("community prefetch stopped", "error", err)
			}
			slog.Info("community topics prefetched", "count", n)
		}
	}()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(a.repo, a.catalog)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", a.catalog.Language(),
		"manifest_url", a.client.ManifestURL(),
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}
