package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/db"
	"github.com/jmehdipour/cablesync/internal/kafka"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/metrics"
	"github.com/jmehdipour/cablesync/internal/notify"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmehdipour/cablesync/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var metricsAddr string

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Consume lifecycle events into ClickHouse history and notify staff of cancellations",
	RunE:  runLifecycle,
}

func init() {
	lifecycleCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "address for /metrics (empty disables)")
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolOptsFrom(cfg.ClickHouse))
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	consumer := kafka.NewConsumerFromConfig(kafka.ConfigFrom(cfg.Kafka))
	defer consumer.Close()

	notifiers := notify.FromConfig(cfg.Notifiers)
	disp := notify.NewDispatcher(notifiers, len(notifiers))

	w := worker.NewLifecycleKafka(consumer, repository.NewHistoryRepository(chDB), disp)
	if cfg.Worker.BatchSize > 0 {
		w.BatchSize = cfg.Worker.BatchSize
	}
	if cfg.Worker.BatchWait > 0 {
		w.BatchWait = cfg.Worker.BatchWait
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error("metrics server exited", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	logger.Log.Info("lifecycle worker started",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
		zap.Int("notifiers", len(notifiers)),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait))

	return w.Run(ctx)
}
