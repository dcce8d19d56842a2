package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shorelinehq/courier/internal/api"
	"github.com/shorelinehq/courier/internal/config"
	"github.com/shorelinehq/courier/internal/dedup"
	"github.com/shorelinehq/courier/internal/delivery"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/router"
	"github.com/shorelinehq/courier/internal/storage"
	"github.com/shorelinehq/courier/internal/tracing"
)

var version = "0.1.0"

const serviceName = "courier"

func main() {
	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "Courier — multi-channel message delivery service",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(statusCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the courier service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := storage.NewSQLite(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			broker, err := queue.NewSQLiteBroker(cfg.Broker.Path, cfg.Broker.LeaseTTL)
			if err != nil {
				return fmt.Errorf("failed to open broker: %w", err)
			}
			defer broker.Close()

			if err := migrate(store, broker); err != nil {
				return err
			}
			log.Info().Msg("migrations completed")

			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			tracer := tracing.NewCorrelator(serviceName, tracing.NewRedisPublisher(redisClient), log)
			gate := dedup.NewGate(dedup.NewRedisCache(redisClient), cfg.Dedup.TTL, dedup.Policy(cfg.Dedup.Policy), log)
			rt := router.New(gate, broker, store, tracer, cfg.Delivery.MaxRetries, log)

			senders := delivery.NewRegistry(cfg.Providers, cfg.Delivery.ProviderTimeout)
			pool := delivery.NewPool(cfg.Delivery, cfg.Broker.PollInterval, broker, store, senders, tracer, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			server := api.NewServer(cfg.Server, rt, store, broker, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("dedup_policy", cfg.Dedup.Policy).
				Int("max_retries", cfg.Delivery.MaxRetries).
				Msg("courier is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			pool.Stop()

			log.Info().Msg("courier stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run storage and broker migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := storage.NewSQLite(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			broker, err := queue.NewSQLiteBroker(cfg.Broker.Path, cfg.Broker.LeaseTTL)
			if err != nil {
				return fmt.Errorf("failed to open broker: %w", err)
			}
			defer broker.Close()

			if err := migrate(store, broker); err != nil {
				return err
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the delivery record for a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: courier status <message_id>")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, err := storage.NewSQLite(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			rec, err := store.GetDeliveryRecord(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get delivery record: %w", err)
			}
			if rec == nil {
				return fmt.Errorf("no delivery record for %s", args[0])
			}

			out, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("courier v%s\n", version)
		},
	}
}

func migrate(store storage.Store, broker queue.Broker) error {
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("storage migration failed: %w", err)
	}
	if err := broker.Migrate(ctx); err != nil {
		return fmt.Errorf("broker migration failed: %w", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
