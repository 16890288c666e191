package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pulse/internal/auth"
	"pulse/internal/catalog"
	"pulse/internal/config"
	"pulse/internal/configstore"
	"pulse/internal/engine"
	"pulse/internal/executor"
	"pulse/internal/heartbeat"
	"pulse/internal/oracle"
	"pulse/internal/planner"
	"pulse/internal/registry"
	"pulse/internal/server"
	"pulse/internal/session"
	"pulse/internal/store"
)

var dryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and heartbeat scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the scripted oracle instead of the chat-completions backend")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiles, err := buildProfileStore(cfg)
	if err != nil {
		return err
	}
	if fs, ok := profiles.(*configstore.FileStore); ok {
		if err := fs.Watch(ctx); err != nil {
			return fmt.Errorf("watch profile: %w", err)
		}
	}

	sessions, locks, closeStores, err := buildSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	defaults := buildDefaults(cfg)
	eng, err := engine.New(engine.Config{
		Profiles:        profiles,
		Store:           sessions,
		Locks:           locks,
		Oracle:          buildOracle(cfg),
		Executor:        executor.NewHTTPCaller(cfg.Planner.ExecTimeoutDuration(), logger),
		Defaults:        defaults,
		DefaultPlatform: cfg.Agent.DefaultPlatform,
		Planner: planner.Options{
			MaxSteps:           cfg.Planner.MaxSteps,
			OracleTimeout:      cfg.Oracle.TimeoutDuration(),
			ExecTimeout:        cfg.Planner.ExecTimeoutDuration(),
			OracleFailureLimit: cfg.Planner.OracleFailureLimit,
			HistoryWindow:      cfg.Planner.HistoryWindow,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	scheduler := heartbeat.NewScheduler(eng, logger)
	defer scheduler.Close()

	srv := server.New(server.Config{
		Engine:          eng,
		Profiles:        profiles,
		Scheduler:       scheduler,
		Issuer:          auth.NewIssuer(cfg.Auth.APIKey, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTLDuration()),
		Defaults:        defaults,
		DefaultPlatform: cfg.Agent.DefaultPlatform,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Logger:          logger,
	})

	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Handler()}
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildProfileStore(cfg *config.Config) (configstore.Store, error) {
	switch cfg.Profile.Backend {
	case "mysql":
		return configstore.OpenMySQL(cfg.Profile.DSN, "default", configstore.AgentProfile{})
	default:
		return configstore.NewFileStore(cfg.Profile.Path, logger)
	}
}

func buildSessionStore(ctx context.Context, cfg *config.Config) (session.Store, session.Locker, func(), error) {
	var (
		sessions session.Store
		closers  []func()
	)
	switch cfg.Session.Backend {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Session.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { s.Close() })
		sessions = s
	case "postgres":
		s, err := store.OpenPostgres(ctx, cfg.Session.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { s.Close() })
		sessions = s
	default:
		sessions = session.NewMemoryStore()
	}

	var locks session.Locker = session.NewLocks()
	if cfg.Session.RedisURL != "" {
		r, err := store.NewRedisLocks(cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { r.Close() })
		locks = r
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sessions, locks, closeAll, nil
}

func buildOracle(cfg *config.Config) oracle.Oracle {
	if dryRun || cfg.Oracle.APIKey == "" {
		logger.Warn("no oracle api key, using the scripted oracle")
		return oracle.NewScripted()
	}
	return oracle.NewChatCompletions(oracle.ChatConfig{
		APIKey:  cfg.Oracle.APIKey,
		BaseURL: cfg.Oracle.BaseURL,
		ModelID: cfg.Oracle.ModelID,
		Timeout: cfg.Oracle.TimeoutDuration(),
		Retries: cfg.Oracle.Retries,
	}, logger)
}

// buildDefaults assembles the built-in catalogs for every platform with a
// configured credential.
func buildDefaults(cfg *config.Config) []*registry.FunctionSpec {
	var defaults []*registry.FunctionSpec
	if cfg.Agent.TwitterBearerToken != "" {
		defaults = append(defaults, catalog.Twitter(cfg.Agent.TwitterBearerToken)...)
	}
	if cfg.Agent.TelegramBotToken != "" {
		defaults = append(defaults, catalog.Telegram(cfg.Agent.TelegramBotToken)...)
	}
	if cfg.Agent.DiscordBotToken != "" {
		defaults = append(defaults, catalog.Discord(cfg.Agent.DiscordBotToken)...)
	}
	if cfg.Agent.FarcasterAPIKey != "" && cfg.Agent.FarcasterSignerUUID != "" {
		defaults = append(defaults, catalog.Farcaster(cfg.Agent.FarcasterAPIKey, cfg.Agent.FarcasterSignerUUID)...)
	}
	return defaults
}
