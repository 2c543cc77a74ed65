package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fleetconf/shepherd/pkg/api"
	"github.com/fleetconf/shepherd/pkg/batcher"
	"github.com/fleetconf/shepherd/pkg/components"
	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/metrics"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/registry"
	"github.com/fleetconf/shepherd/pkg/runner"
	"github.com/fleetconf/shepherd/pkg/secrets"
	"github.com/fleetconf/shepherd/pkg/sessions"
	"github.com/fleetconf/shepherd/pkg/storage"
)

// settings mirrors the server flags for the optional YAML settings file.
// Flags set on the command line win over file values.
type settings struct {
	APIAddr         string `yaml:"api_addr"`
	DataDir         string `yaml:"data_dir"`
	LogLevel        string `yaml:"log_level"`
	JSONLogs        bool   `yaml:"json_logs"`
	RunnerEndpoint  string `yaml:"runner_endpoint"`
	SecretsPassword string `yaml:"secrets_password"`
	DisableBatcher  bool   `yaml:"disable_batcher"`
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the shepherd service",
	Long: `Run the shepherd service: the component state store, the v2 and v3
HTTP APIs, and the batcher that schedules remediation sessions.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "Path to a YAML settings file")
	serverCmd.Flags().String("api-addr", "127.0.0.1:8080", "Address for the HTTP API")
	serverCmd.Flags().String("data-dir", "/var/lib/shepherd", "Data directory for service state")
	serverCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serverCmd.Flags().Bool("json-logs", false, "Emit logs as JSON instead of console format")
	serverCmd.Flags().String("runner-endpoint", "", "URL notified when a session is created (empty disables)")
	serverCmd.Flags().String("secrets-password", "", "Password the secret encryption key is derived from (or SHEPHERD_SECRETS_PASSWORD)")
	serverCmd.Flags().Bool("disable-batcher", false, "Do not schedule remediation sessions")
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	cfg := &settings{}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}
	flagStr := func(name string, dst *string) {
		if cmd.Flags().Changed(name) || *dst == "" {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	flagBool := func(name string, dst *bool) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetBool(name)
		}
	}
	flagStr("api-addr", &cfg.APIAddr)
	flagStr("data-dir", &cfg.DataDir)
	flagStr("log-level", &cfg.LogLevel)
	flagBool("json-logs", &cfg.JSONLogs)
	flagStr("runner-endpoint", &cfg.RunnerEndpoint)
	flagStr("secrets-password", &cfg.SecretsPassword)
	flagBool("disable-batcher", &cfg.DisableBatcher)
	if cfg.SecretsPassword == "" {
		cfg.SecretsPassword = os.Getenv("SHEPHERD_SECRETS_PASSWORD")
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cfg.SecretsPassword == "" {
		return fmt.Errorf("a secrets password is required; set --secrets-password or SHEPHERD_SECRETS_PASSWORD")
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.JSONLogs,
	})
	metrics.SetVersion(Version)
	logger := log.WithComponent("server")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("store", true, "open")

	opts := options.NewCache(store)
	if err := opts.Reload(); err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	secretMgr, err := secrets.NewManagerFromPassword(store, cfg.SecretsPassword)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	engine := components.NewEngine(store, opts, broker)
	reg := registry.NewRegistry(store, secretMgr, broker)

	var run runner.Runner = runner.NopRunner{}
	if cfg.RunnerEndpoint != "" {
		run = runner.NewHTTPRunner(cfg.RunnerEndpoint)
	}
	sessionMgr := sessions.NewManager(store, opts, broker, run)

	var batch *batcher.Batcher
	if !cfg.DisableBatcher {
		batch = batcher.NewBatcher(store, engine, sessionMgr, opts)
		batch.Start()
	}

	collector := metrics.NewCollector(store, broker)
	collector.Start()

	apiServer := api.NewServer(engine, reg, sessionMgr, opts)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	logger.Info().
		Str("version", Version).
		Str("api_addr", cfg.APIAddr).
		Str("data_dir", cfg.DataDir).
		Msg("shepherd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("API server failed")
	}

	apiServer.Stop()
	if batch != nil {
		batch.Stop()
	}
	collector.Stop()
	broker.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}
