// Worker consumes session events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SESSION_EVENTS_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/config"
	"github.com/xboybx/Authentication-System/internal/logging"
	"github.com/xboybx/Authentication-System/internal/telemetry/loki"
	"github.com/xboybx/Authentication-System/internal/telemetry/producer"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log = log.Named("worker")
	defer func() { _ = log.Sync() }()

	readerCfg, err := producer.ReaderConfig(cfg.KafkaBrokersList(), cfg.SessionEventsTopic, cfg.KafkaGroupID)
	if err != nil {
		log.Fatal("kafka config", zap.Error(err))
	}
	if cfg.LokiURL == "" {
		log.Fatal("LOKI_URL is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatal("loki client", zap.Error(err))
	}

	reader := kafka.NewReader(readerCfg)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("consuming session events",
		zap.String("topic", readerCfg.Topic), zap.String("group", readerCfg.GroupID), zap.String("loki", cfg.LokiURL))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("stopped")
				return
			}
			log.Warn("kafka read error", zap.Error(err))
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := client.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Warn("loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		cancel()
	}
}
