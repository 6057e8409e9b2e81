package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/habedi/tenantctl/auth"
	"github.com/habedi/tenantctl/client"
	"github.com/habedi/tenantctl/config"
	"github.com/habedi/tenantctl/db"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// annotationOffline marks commands that run without a client.
const annotationOffline = "offline"

// historyKeep is how many request log entries survive a run.
const historyKeep = 500

// app holds what the root command builds before a subcommand runs.
type app struct {
	client *client.Client
	logs   db.RequestLogRepository
	redis  *redis.Client
	dbOpen bool
}

// Execute runs the CLI and returns the error that ended it, already reported to the user.
func Execute(ctx context.Context) error {
	rootCmd, a := createRootCmd()
	defer a.close()

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cliErr := clierr.FromError(err)
		rootCmd.PrintErrln("Error:", cliErr.Message)
		log.Error().Err(err).Str("type", string(cliErr.Type)).Msg("Command execution failed.")
		return err
	}
	return nil
}

func createRootCmd() (*cobra.Command, *app) {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "A console for the multi-tenant admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationOffline] != "" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		requestCmd(a, "GET"),
		requestCmd(a, "DELETE"),
		requestCmd(a, "POST"),
		requestCmd(a, "PUT"),
		requestCmd(a, "PATCH"),
		uploadCmd(a),
		downloadCmd(a),
		listCmd(a),
		bulkCmd(a),
		fetchCmd(a),
		historyCmd(a),
		checksumCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd, a
}

// setup loads the configuration and builds the client for cmd.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString(config.FlagConfig)
	cfg, err := config.Load(configPath)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := cfg.ApplyFlags(flags); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := cfg.Validate(); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	ctx := cmd.Context()
	store, deviceID, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.DeviceID != "" {
		deviceID = cfg.DeviceID
	}

	errOut := cmd.ErrOrStderr()
	c, err := client.New(store, client.Options{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		RetryDelay:        cfg.RetryDelay,
		MaxWait:           cfg.MaxRetryWait,
		TenantID:          cfg.TenantID,
		DeviceID:          deviceID,
		Recorder:          client.RecorderFunc(a.record),
		DownloadRateLimit: cfg.DownloadRateLimit,
		OnSessionExpired: func(err error) {
			_, _ = errOut.Write([]byte("Session expired. Please run `tenantctl login` again.\n"))
		},
	})
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	a.client = c
	log.Debug().Str("base_url", cfg.BaseURL).Str("backend", cfg.TokenBackend).Msg("Client ready")
	return nil
}

// openStore prepares the token store for the configured backend and returns it with the device ID.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (*auth.TokenStore, string, error) {
	if cfg.TokenBackend == config.BackendMemory {
		return auth.NewTokenStore(nil), uuid.NewString(), nil
	}

	db.ConfigurePath(cfg.DBPath())
	if err := db.InitDB(); err != nil {
		return nil, "", clierr.New(clierr.Internal, "Failed to initialize database", err)
	}
	a.dbOpen = true
	a.logs = db.NewRequestLogRepository(db.GetDB())

	deviceID, err := db.EnsureDeviceID(ctx, db.GetDB())
	if err != nil {
		return nil, "", clierr.New(clierr.Internal, "Failed to load the device identity", err)
	}

	var repo db.TokenRepository
	switch cfg.TokenBackend {
	case config.BackendRedis:
		rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, "", clierr.New(clierr.Network, err.Error(), err)
		}
		a.redis = rdb
		repo = db.NewRedisTokenRepository(rdb, "")
	default:
		repo = db.NewTokenRepository(db.GetDB())
	}

	store := auth.NewTokenStore(auth.NewRepoStorer(repo))
	if err := store.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not load the saved session; continuing without one")
	}
	return store, deviceID, nil
}

// record appends one call to the request log. Memory sessions keep no log.
func (a *app) record(ctx context.Context, rec client.CallRecord) error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Append(ctx, &db.RequestLog{
		RequestID:  rec.RequestID,
		Method:     rec.Method,
		Path:       rec.Path,
		Status:     rec.Status,
		Kind:       string(rec.Kind),
		Attempts:   rec.Attempts,
		DurationMs: rec.Duration.Milliseconds(),
		CreatedAt:  rec.At,
	})
}

func (a *app) close() {
	if a.logs != nil {
		if err := a.logs.Prune(context.Background(), historyKeep); err != nil {
			log.Warn().Err(err).Msg("Failed to prune the request log")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close the redis connection")
		}
		a.redis = nil
	}
	if a.dbOpen {
		db.Shutdown()
		a.dbOpen = false
	}
	a.logs = nil
}
