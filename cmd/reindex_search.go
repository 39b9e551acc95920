package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/database"
	"github.com/psds-microservice/helpdesk-service/internal/kafka"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/searchindex"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all tickets into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

func init() {
	rootCmd.AddCommand(reindexSearchCmd)
}

const reindexBatch = 100

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	conn, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	var push func(t *model.Ticket) error
	var via string
	switch {
	case len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTicket != "":
		producer := kafka.NewProducer(log, cfg.KafkaBrokers, cfg.KafkaTopicTicket)
		defer producer.Close()
		via = "kafka"
		push = func(t *model.Ticket) error {
			producer.ProduceTicketEvent(ctx, kafka.NewTicketEvent(kafka.EventTicketUpdated, model.Actor{}, t.ID, t))
			return nil
		}
	case cfg.SearchServiceURL != "":
		client := searchindex.NewClient(log, cfg.SearchServiceURL)
		via = "http"
		push = func(t *model.Ticket) error { return client.IndexTicket(ctx, t) }
	default:
		log.Warn("reindex_skipped", slog.String("reason", "neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set"))
		return nil
	}

	var sent, failed int
	var batch []model.Ticket
	res := conn.WithContext(ctx).FindInBatches(&batch, reindexBatch, func(tx *gorm.DB, n int) error {
		for i := range batch {
			if err := push(&batch[i]); err != nil {
				failed++
				log.Warn("reindex_ticket_failed", slog.Uint64("ticket_id", batch[i].ID), slog.String("err", err.Error()))
				continue
			}
			sent++
		}
		log.Info("reindex_progress", slog.String("via", via), slog.Int("sent", sent), slog.Int("failed", failed))
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("list tickets: %w", res.Error)
	}
	log.Info("reindex_done", slog.String("via", via), slog.Int("sent", sent), slog.Int("failed", failed))
	return nil
}
