package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen          TicketStatus = "open"
	TicketStatusInProgress    TicketStatus = "in_progress"
	TicketStatusWaitingClient TicketStatus = "waiting_client"
	TicketStatusFinished      TicketStatus = "finished"
	TicketStatusClosed        TicketStatus = "closed"
)

// TicketStatuses lists every workflow stage in display order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingClient,
	TicketStatusFinished,
	TicketStatusClosed,
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingClient, TicketStatusFinished, TicketStatusClosed:
		return true
	}
	return false
}

type Ticket struct {
	ID          uint64       `gorm:"primaryKey" json:"id"`
	Subject     string       `gorm:"type:varchar(255);not null" json:"subject"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Status      TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	CreatedBy   uint64       `gorm:"index;not null" json:"created_by"`
	AssignedTo  *uint64      `gorm:"index" json:"assigned_to"`

	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
}

// IsAssignedTo reports whether the ticket is currently assigned to userID.
func (t *Ticket) IsAssignedTo(userID uint64) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// TicketLog is an append-only audit entry. TicketID is a plain column: the
// entry outlives the ticket it describes.
type TicketLog struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	TicketID    uint64    `gorm:"index;not null" json:"ticket_id"`
	UserID      *uint64   `gorm:"index" json:"user_id"`
	Action      string    `gorm:"type:varchar(64);not null" json:"action"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}
