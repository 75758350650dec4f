package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/absmach/hetsync"
	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/pkg/events"
	"github.com/absmach/hetsync/pkg/mqtt"
	"github.com/absmach/hetsync/server"
	"github.com/absmach/hetsync/server/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	naiveArg          = "naive"
)

var errUnknownMode = errors.New(`unknown mode, the only accepted argument is "naive"`)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [naive]",
		Short: "Run the aggregation server",
		Long: "Accept worker gradients over TCP, sum them and broadcast the result. " +
			"Rounds close on quorum, or when the round timeout passes unless running naive.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}

			logger := configureLogger(cfg.Server.LogLevel)
			slog.SetDefault(logger)

			return runServer(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringP("listen", "l", "", "TCP address workers connect to")
	cmd.Flags().IntP("port", "p", 0, "TCP port workers connect to, shorthand for --listen :PORT")
	cmd.Flags().IntP("quorum", "k", 0, "Contributions that close a round")
	cmd.Flags().IntP("dim", "d", 0, "Number of float32 values per gradient")
	cmd.Flags().DurationP("timeout", "t", 0, "Round deadline measured from the first contribution")
	cmd.Flags().Bool("naive", false, "Close rounds on quorum only")
	cmd.Flags().StringP("admin", "a", "", "Admin HTTP address, empty string disables it")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")

	return cmd
}

// resolveConfig layers explicitly set flags over the file and environment
// configuration.
func resolveConfig(cmd *cobra.Command, args []string) (hetsync.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := hetsync.LoadConfig(path)
	if err != nil {
		return hetsync.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.ListenAddress, _ = flags.GetString("listen")
	}
	if flags.Changed("port") {
		port, _ := flags.GetInt("port")
		cfg.Server.ListenAddress = fmt.Sprintf(":%d", port)
	}
	if flags.Changed("quorum") {
		cfg.Server.QuorumSize, _ = flags.GetInt("quorum")
	}
	if flags.Changed("dim") {
		cfg.Server.Dimension, _ = flags.GetInt("dim")
	}
	if flags.Changed("timeout") {
		cfg.Server.RoundTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("naive") {
		cfg.Server.Naive, _ = flags.GetBool("naive")
	}
	if flags.Changed("admin") {
		cfg.Admin.Address, _ = flags.GetString("admin")
	}
	if flags.Changed("log-level") {
		cfg.Server.LogLevel, _ = flags.GetString("log-level")
	}

	if len(args) == 1 {
		if args[0] != naiveArg {
			return hetsync.Config{}, errUnknownMode
		}
		cfg.Server.Naive = true
	}

	if err := cfg.Validate(); err != nil {
		return hetsync.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func runServer(ctx context.Context, cfg hetsync.Config, logger *slog.Logger) error {
	emitter, closeEmitter, err := newEmitter(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer closeEmitter()

	registry := server.NewRegistry()
	distributor := server.NewDistributor(registry, cfg.Server.WriteTimeout, logger)

	coordinator, err := aggregator.NewCoordinator(aggregator.Config{
		Dimension:    cfg.Server.Dimension,
		QuorumSize:   cfg.Server.QuorumSize,
		RoundTimeout: cfg.Server.RoundTimeout,
		Naive:        cfg.Server.Naive,
		HistorySize:  cfg.Server.HistorySize,
	}, distributor, emitter, logger)
	if err != nil {
		return fmt.Errorf("coordinator initialization error: %w", err)
	}

	srv := server.New(server.Config{
		ListenAddress: cfg.Server.ListenAddress,
		DeadlinePoll:  cfg.Server.DeadlinePoll,
		Naive:         cfg.Server.Naive,
		MaxPayload:    cfg.MaxPayload(),
	}, coordinator, registry, emitter, logger)

	logger.Info("Starting aggregation server",
		slog.Int("quorum_size", cfg.Server.QuorumSize),
		slog.Int("dimension", cfg.Server.Dimension),
		slog.Bool("naive", cfg.Server.Naive),
		slog.Duration("round_timeout", cfg.Server.RoundTimeout))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if cfg.Admin.Address != "" {
		hs := &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           api.MakeHandler(server.NewAdminService(srv), logger),
			ReadHeaderTimeout: readHeaderTimeout,
		}

		g.Go(func() error {
			logger.Info("Admin API listening", slog.String("address", cfg.Admin.Address))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server error: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return hs.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("Aggregation server stopped")

	return err
}

// newEmitter connects to the MQTT broker when one is configured. The
// returned func disconnects it.
func newEmitter(cfg hetsync.MQTTConfig, logger *slog.Logger) (aggregator.EventEmitter, func(), error) {
	if cfg.URL == "" {
		return aggregator.NopEmitter(), func() {}, nil
	}

	topics := events.NewTopicBuilder(cfg.TopicPrefix)

	pubsub, err := mqtt.NewPublisher(mqtt.Config{
		URL:         cfg.URL,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		QoS:         cfg.QoS,
		Timeout:     cfg.Timeout,
		StatusTopic: topics.StatusTopic(),
		CAPath:      cfg.CAPath,
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	logger.Info("Publishing round events", slog.String("broker", cfg.URL), slog.String("prefix", topics.BaseTopic()))

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := pubsub.Disconnect(ctx); err != nil {
			logger.Warn("Failed to disconnect from MQTT broker", slog.Any("error", err))
		}
	}

	return events.NewMQTTEventEmitter(pubsub, topics), closeFn, nil
}

func configureLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}
