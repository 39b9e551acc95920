package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/model"
)

// Client отправляет тикеты в search-service для индексации (best-effort, не блокирует API).
type Client struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы — no-op.
func NewClient(log *slog.Logger, baseURL string) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

// IndexTicketPayload — тело POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID    int64   `json:"ticket_id"`
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedBy   int64   `json:"created_by"`
	AssignedTo  *int64  `json:"assigned_to"`
	CreatedAt   string  `json:"created_at"`
	ClosedAt    *string `json:"closed_at"`
}

func payloadFor(t *model.Ticket) IndexTicketPayload {
	p := IndexTicketPayload{
		TicketID:    int64(t.ID),
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   int64(t.CreatedBy),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.AssignedTo != nil {
		v := int64(*t.AssignedTo)
		p.AssignedTo = &v
	}
	if t.ClosedAt != nil {
		v := t.ClosedAt.UTC().Format(time.RFC3339)
		p.ClosedAt = &v
	}
	return p
}

// IndexTicket отправляет тикет в search-service.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) error {
	if c.baseURL == "" {
		return nil
	}
	body, err := json.Marshal(payloadFor(t))
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/index/ticket", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("searchindex: status %d for ticket %d", resp.StatusCode, t.ID)
	}
	return nil
}

// IndexTicketAsync вызывает IndexTicket в отдельной горутине и логирует ошибки (не блокирует ответ API).
func (c *Client) IndexTicketAsync(t *model.Ticket) {
	if c.baseURL == "" {
		return
	}
	snapshot := *t
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexTicket(ctx, &snapshot); err != nil {
			c.log.Warn("search_index_failed", slog.Uint64("ticket_id", snapshot.ID), slog.String("err", err.Error()))
		}
	}()
}
