package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/psds-microservice/helpdesk-service/internal/auth"
	"github.com/psds-microservice/helpdesk-service/internal/config"
	"github.com/psds-microservice/helpdesk-service/internal/database"
	"github.com/psds-microservice/helpdesk-service/internal/handler"
	"github.com/psds-microservice/helpdesk-service/internal/kafka"
	"github.com/psds-microservice/helpdesk-service/internal/metrics"
	"github.com/psds-microservice/helpdesk-service/internal/router"
	"github.com/psds-microservice/helpdesk-service/internal/searchindex"
	"github.com/psds-microservice/helpdesk-service/internal/service"
)

// API is the HTTP server process (mode "api").
type API struct {
	cfg      *config.Config
	log      *slog.Logger
	httpSrv  *http.Server
	sqlDB    *sql.DB
	producer *kafka.Producer
}

// NewAPI migrates the schema, opens the database and wires every dependency.
func NewAPI(cfg *config.Config, log *slog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(log, cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(sqlDB, cfg.DB.Database),
	)
	m := metrics.New(reg)

	ticketSvc := service.NewTicketService(db, service.Options{
		ClientOnlyCreate: cfg.Tickets.ClientOnlyCreate,
		DefaultListLimit: cfg.Tickets.DefaultListLimit,
		MaxListLimit:     cfg.Tickets.MaxListLimit,
	})
	producer := kafka.NewProducer(log, cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	search := searchindex.NewClient(log, cfg.SearchServiceURL)

	h := router.New(router.Deps{
		Log:      log,
		Tickets:  handler.NewTicketHandler(log, ticketSvc, producer, search, m),
		Tokens:   auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer),
		Users:    service.NewUserService(db),
		DB:       sqlDB,
		Metrics:  m,
		Gatherer: reg,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      log,
		httpSrv:  httpSrv,
		sqlDB:    sqlDB,
		producer: producer,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains connections and
// flushes the event producer.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	a.log.Info("http_listening",
		slog.String("addr", a.httpSrv.Addr),
		slog.String("swagger", "http://"+host+":"+a.cfg.HTTPPort+"/swagger"),
		slog.Bool("kafka", a.producer.Enabled()),
		slog.Bool("search_index", a.cfg.SearchServiceURL != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		a.log.Warn("kafka_close_failed", slog.String("err", err.Error()))
	}
	if err := a.sqlDB.Close(); err != nil {
		a.log.Warn("db_close_failed", slog.String("err", err.Error()))
	}
	a.log.Info("http_stopped")
	return nil
}
