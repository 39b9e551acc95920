package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/model"
	"gorm.io/gorm"
)

// Audit log actions.
const (
	ActionTicketCreated      = "ticket created"
	ActionTechnicianAssigned = "technician assigned"
	ActionStatusChanged      = "status changed"
	ActionTicketClosed       = "ticket closed"
	ActionTicketDeleted      = "ticket deleted"
	ActionTicketClaimed      = "ticket claimed"
)

type auditEntry struct {
	action      string
	description string
}

func assignedEntry(to *uint64) auditEntry {
	target := "none"
	if to != nil {
		target = strconv.FormatUint(*to, 10)
	}
	return auditEntry{action: ActionTechnicianAssigned, description: "Assigned to user ID " + target}
}

func statusChangedEntry(from, to model.TicketStatus) auditEntry {
	return auditEntry{
		action:      ActionStatusChanged,
		description: fmt.Sprintf("Status changed from %s to %s", from, to),
	}
}

// auditRecorder appends TicketLog rows. It must be called with the
// transaction that carries the mutation being recorded.
type auditRecorder struct {
	now func() time.Time
}

func (r auditRecorder) record(tx *gorm.DB, ticketID uint64, actor model.Actor, e auditEntry) error {
	userID := actor.ID
	entry := model.TicketLog{
		TicketID:  ticketID,
		UserID:    &userID,
		Action:    e.action,
		CreatedAt: r.now(),
	}
	if e.description != "" {
		desc := e.description
		entry.Description = &desc
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append ticket log %q: %w", e.action, err)
	}
	return nil
}

// logs returns a ticket's audit trail in insertion order. It does not check
// visibility; callers do.
func (s *TicketService) logs(ctx context.Context, ticketID uint64) ([]model.TicketLog, error) {
	var out []model.TicketLog
	if err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
