package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Имена событий тикета.
const (
	EventTicketCreated = "ticket.created"
	EventTicketUpdated = "ticket.updated"
	EventTicketClosed  = "ticket.closed"
	EventTicketClaimed = "ticket.claimed"
	EventTicketDeleted = "ticket.deleted"
)

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event TicketEvent)
}

// TicketEvent — тело сообщения. При удалении Ticket равен nil.
type TicketEvent struct {
	Event    string        `json:"event"`
	TicketID uint64        `json:"ticket_id"`
	ActorID  uint64        `json:"actor_id"`
	Ticket   *model.Ticket `json:"ticket,omitempty"`
	At       time.Time     `json:"at"`
}

func NewTicketEvent(event string, actor model.Actor, ticketID uint64, t *model.Ticket) TicketEvent {
	return TicketEvent{Event: event, TicketID: ticketID, ActorID: actor.ID, Ticket: t, At: time.Now().UTC()}
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	log    *slog.Logger
	writer *kafka.Writer
	topic  string
}

// NewProducer создаёт продюсер. Если brokers или topic пустые — методы no-op.
func NewProducer(log *slog.Logger, brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		log:   log,
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent отправляет событие в топик. Ключ — id тикета, события одного тикета идут по порядку.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event TicketEvent) {
	if p.writer == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("kafka_marshal_failed", slog.String("event", event.Event), slog.String("err", err.Error()))
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(event.TicketID, 10)),
		Value: body,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("kafka_write_failed",
			slog.String("event", event.Event),
			slog.Uint64("ticket_id", event.TicketID),
			slog.String("err", err.Error()),
		)
	}
}

// ProduceAsync отправляет событие в отдельной горутине со своим таймаутом
// (отмена запроса не теряет событие).
func (p *Producer) ProduceAsync(event TicketEvent) {
	if p.writer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.ProduceTicketEvent(ctx, event)
	}()
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
