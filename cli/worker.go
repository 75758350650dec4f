package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/hetsync/client"
	"github.com/spf13/cobra"
)

// workerGradient is the gradient sent in round i: dimension copies of i+1.
func workerGradient(dimension, i int) []float32 {
	g := make([]float32, dimension)
	for j := range g {
		g[j] = float32(i + 1)
	}

	return g
}

func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a test worker against an aggregation server",
		Long: "Connect once, then for each round send a constant gradient and " +
			"wait for the aggregated model broadcast.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			address, _ := cmd.Flags().GetString("address")
			dimension, _ := cmd.Flags().GetInt("dim")
			rounds, _ := cmd.Flags().GetInt("rounds")
			delay, _ := cmd.Flags().GetDuration("delay")
			pause, _ := cmd.Flags().GetDuration("pause")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			level, _ := cmd.Flags().GetString("log-level")

			if dimension < 1 {
				return fmt.Errorf("dim must be at least 1, got %d", dimension)
			}

			logger := configureLogger(level)

			if err := runWorker(cmd.Context(), logger, workerOptions{
				address:   address,
				dimension: dimension,
				rounds:    rounds,
				delay:     delay,
				pause:     pause,
				timeout:   timeout,
			}); err != nil {
				return err
			}

			logOKCmd(*cmd)

			return nil
		},
	}

	cmd.Flags().StringP("address", "s", "localhost:9999", "Aggregation server address")
	cmd.Flags().IntP("dim", "d", 10, "Number of float32 values per gradient")
	cmd.Flags().IntP("rounds", "r", 5, "Gradients to send")
	cmd.Flags().Duration("delay", 0, "Wait before sending each gradient, to simulate a straggler")
	cmd.Flags().Duration("pause", 100*time.Millisecond, "Wait after each received model")
	cmd.Flags().DurationP("timeout", "t", 0, "Maximum wait for each broadcast, 0 waits forever")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")

	return cmd
}

type workerOptions struct {
	address   string
	dimension int
	rounds    int
	delay     time.Duration
	pause     time.Duration
	timeout   time.Duration
}

func runWorker(ctx context.Context, logger *slog.Logger, opts workerOptions) error {
	c, err := client.Dial(ctx, opts.address, opts.dimension)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("Worker connected", slog.String("server", opts.address), slog.String("local_addr", c.LocalAddr().String()))

	for i := range opts.rounds {
		if err := sleep(ctx, opts.delay); err != nil {
			return err
		}

		if err := c.Send(workerGradient(opts.dimension, i)); err != nil {
			return err
		}
		logger.Info("Gradient sent", slog.Int("message", i+1), slog.Float64("value", float64(i+1)))

		model, err := receive(ctx, c, opts.timeout)
		if err != nil {
			return fmt.Errorf("failed to receive model for message %d: %w", i+1, err)
		}
		logger.Info("Model received", slog.Int("message", i+1), slog.Float64("first_value", float64(model[0])))

		if err := sleep(ctx, opts.pause); err != nil {
			return err
		}
	}

	logger.Info("Worker finished", slog.Int("rounds", opts.rounds))

	return nil
}

func receive(ctx context.Context, c *client.Client, timeout time.Duration) ([]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return c.Receive(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
