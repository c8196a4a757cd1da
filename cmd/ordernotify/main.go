package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordernotify/internal/alert"
	"ordernotify/internal/bus"
	"ordernotify/internal/composer"
	"ordernotify/internal/config"
	"ordernotify/internal/dispatch"
	"ordernotify/internal/domain"
	"ordernotify/internal/message"
	"ordernotify/internal/render"
	"ordernotify/internal/server"
	"ordernotify/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "ordernotify",
		Short:   "ordernotify: WhatsApp notification gateway for sales orders",
		Long:    "ordernotify delivers order notifications over the WAHA WhatsApp API and uploads payment documents to an external service.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.ordernotify/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(settingsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildLogger applies the configured level and optional log file.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("next: configure delivery settings", "example", "ordernotify settings set waha.base_url https://waha.example.com/api")
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the notification gateway (intake API + event hooks)",
		Long:  "Starts the HTTP intake API and the order event hooks. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger = buildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	eventBus := bus.New(100, logger)
	defer eventBus.Close()

	templates := message.Load(cfg.Templates.Path, logger)

	dispatcher := dispatch.New(dispatch.Config{
		Settings: db,
		Audit:    db,
		Logger:   logger,
	})

	var alerter domain.Alerter
	if cfg.Alerts.TelegramEnabled {
		tg, err := alert.NewTelegram(alert.TelegramConfig{
			Token:  cfg.Alerts.TelegramToken,
			ChatID: cfg.Alerts.TelegramChatID,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("telegram alerter unavailable, continuing without alerts", "err", err)
		} else {
			alerter = tg
		}
	}

	dispatch.RegisterHooks(eventBus, dispatcher, templates, alerter, logger)
	go eventBus.Run(ctx)

	comp := composer.New(composer.Config{
		Renderer:    render.NewChromeRenderer(logger),
		Attachments: db,
		Dispatcher:  dispatcher,
		Templates:   templates,
		Logger:      logger,
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Logger:          logger,
		Bus:             eventBus,
		Composer:        comp,
		Settings:        db,
		Audit:           db,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
	})

	logger.Info("gateway started. Press Ctrl+C to stop.")
	return srv.Start(ctx)
}

func sendCmd() *cobra.Command {
	var orderName, phone, text string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a one-off text message for an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger = buildLogger(cfg)

			db, err := store.NewSQLiteStore(cfg.Database.Path, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			dispatcher := dispatch.New(dispatch.Config{
				Settings: db,
				Audit:    db,
				Logger:   logger,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			order := domain.OrderRef{Name: orderName, CustomerPhone: phone}
			return dispatcher.SendText(ctx, order, phone, text)
		},
	}

	cmd.Flags().StringVar(&orderName, "order", "", "order name (e.g. SO001)")
	cmd.Flags().StringVar(&phone, "phone", "", "recipient phone number")
	cmd.Flags().StringVar(&text, "message", "", "message text")
	cmd.MarkFlagRequired("order")
	cmd.MarkFlagRequired("phone")
	cmd.MarkFlagRequired("message")

	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View and modify runtime delivery settings",
		Long:  "Delivery settings are stored in the database and re-read on every send, so changes apply immediately without a restart.",
	}

	openStore := func() (*store.SQLiteStore, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(cfg.Database.Path, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Get a delivery setting (e.g. waha.base_url)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			val, err := db.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(val)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a delivery setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			logger.Info("setting updated", "key", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List delivery settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			values, err := db.List(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := values[dispatch.KeyUploadToken]; ok {
				values[dispatch.KeyUploadToken] = "***"
			}
			data, _ := json.MarshalIndent(values, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify service configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. server.port 8391)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
