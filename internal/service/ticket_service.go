package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"gorm.io/gorm"
)

const (
	maxSubjectLen     = 255
	minDescriptionLen = 10
)

// TicketServicer is what the HTTP layer depends on.
type TicketServicer interface {
	List(ctx context.Context, actor model.Actor, f ListFilter) (*ListResult, error)
	FilterOptions(ctx context.Context, actor model.Actor) (*FilterOptions, error)
	Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Ticket, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (*TicketDetail, error)
	EditForm(ctx context.Context, actor model.Actor, id uint64) (*EditForm, error)
	Update(ctx context.Context, actor model.Actor, id uint64, in UpdateInput) (*model.Ticket, bool, error)
	Close(ctx context.Context, actor model.Actor, id uint64) (*model.Ticket, bool, error)
	Delete(ctx context.Context, actor model.Actor, id uint64) error
	Claim(ctx context.Context, actor model.Actor, id uint64) (*model.Ticket, bool, error)
}

type Options struct {
	// ClientOnlyCreate restricts ticket creation to the cliente role.
	ClientOnlyCreate bool
	DefaultListLimit int
	MaxListLimit     int
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

type TicketService struct {
	db    *gorm.DB
	users *UserService
	audit auditRecorder
	opts  Options
}

func NewTicketService(db *gorm.DB, opts Options) *TicketService {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.DefaultListLimit <= 0 {
		opts.DefaultListLimit = 50
	}
	if opts.MaxListLimit <= 0 {
		opts.MaxListLimit = 200
	}
	if opts.DefaultListLimit > opts.MaxListLimit {
		opts.DefaultListLimit = opts.MaxListLimit
	}
	return &TicketService{
		db:    db,
		users: NewUserService(db),
		audit: auditRecorder{now: opts.Clock},
		opts:  opts,
	}
}

type CreateInput struct {
	Subject     string
	Description string
}

// UpdateInput is the guarded transition request. AssignedTo is honoured for
// admins only; nil means "unassigned".
type UpdateInput struct {
	Status     string
	AssignedTo *uint64
}

type TicketDetail struct {
	Ticket model.Ticket      `json:"ticket"`
	Logs   []model.TicketLog `json:"logs"`
}

type EditForm struct {
	Ticket      model.Ticket         `json:"ticket"`
	Technicians []model.User         `json:"technicians,omitempty"`
	Statuses    []model.TicketStatus `json:"statuses"`
}

func (s *TicketService) load(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.Ticket, error) {
	if !actor.Role.Valid() {
		return nil, errs.Denied("unknown role")
	}
	if s.opts.ClientOnlyCreate && actor.Role != model.RoleCliente {
		return nil, errs.Denied("only clients can open tickets")
	}
	subject := strings.TrimSpace(in.Subject)
	description := strings.TrimSpace(in.Description)
	switch {
	case subject == "":
		return nil, errs.Invalid("subject", "is required")
	case utf8.RuneCountInString(subject) > maxSubjectLen:
		return nil, errs.Invalid("subject", "must be at most %d characters", maxSubjectLen)
	case description == "":
		return nil, errs.Invalid("description", "is required")
	case utf8.RuneCountInString(description) < minDescriptionLen:
		return nil, errs.Invalid("description", "must be at least %d characters", minDescriptionLen)
	}

	now := s.opts.Clock()
	t := &model.Ticket{
		Subject:     subject,
		Description: description,
		Status:      model.TicketStatusOpen,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		return s.audit.record(tx, t.ID, actor, auditEntry{
			action:      ActionTicketCreated,
			description: "client created the ticket",
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, actor model.Actor, id uint64) (*TicketDetail, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, t); err != nil {
		return nil, err
	}
	logs, err := s.logs(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: *t, Logs: logs}, nil
}

func (s *TicketService) EditForm(ctx context.Context, actor model.Actor, id uint64) (*EditForm, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canEdit(actor, t); err != nil {
		return nil, err
	}
	form := &EditForm{Ticket: *t, Statuses: allowedStatuses(actor.Role)}
	if actor.Role == model.RoleAdmin {
		techs, err := s.users.ListByRole(ctx, model.RoleTecnico)
		if err != nil {
			return nil, err
		}
		form.Technicians = techs
	}
	return form, nil
}

// Update applies a status change and, for admins, an assignment change.
// Every check runs before the transaction; the write itself only succeeds
// if the ticket still holds the status and assignee that were checked.
// Update applies a guarded status and assignment transition. The bool is
// false when the request matched the stored values and nothing was written.
func (s *TicketService) Update(ctx context.Context, actor model.Actor, id uint64, in UpdateInput) (*model.Ticket, bool, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleTecnico:
		if !t.IsAssignedTo(actor.ID) {
			return nil, false, errs.Denied("ticket is not assigned to you")
		}
	case model.RoleCliente:
		return nil, false, errs.Denied("clients cannot update tickets")
	default:
		return nil, false, errs.Denied("unknown role")
	}

	status := model.TicketStatus(strings.TrimSpace(in.Status))
	if status == "" {
		return nil, false, errs.Invalid("status", "is required")
	}
	if !status.Valid() {
		return nil, false, errs.Invalid("status", "must be one of open, in_progress, waiting_client, finished, closed")
	}

	var entries []auditEntry
	assignee := t.AssignedTo
	if actor.Role == model.RoleAdmin {
		if !sameAssignee(t.AssignedTo, in.AssignedTo) {
			if in.AssignedTo != nil {
				u, err := s.users.GetByID(ctx, *in.AssignedTo)
				if err != nil {
					return nil, false, err
				}
				if u.Role != model.RoleTecnico {
					return nil, false, errs.Denied("only technicians can be assigned")
				}
			}
			entries = append(entries, assignedEntry(in.AssignedTo))
		}
		assignee = in.AssignedTo
	}

	if actor.Role == model.RoleTecnico && status == model.TicketStatusClosed {
		return nil, false, errs.Denied("technicians cannot close tickets")
	}
	if status != t.Status {
		entries = append(entries, statusChangedEntry(t.Status, status))
	}
	if len(entries) == 0 {
		return t, false, nil
	}

	changes := map[string]interface{}{
		"status":      status,
		"assigned_to": nullableID(assignee),
	}
	if status == model.TicketStatusClosed {
		changes["closed_at"] = s.opts.Clock()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.Ticket{}).Where("id = ? AND status = ?", t.ID, t.Status)
		res := whereAssignee(q, t.AssignedTo).Updates(changes)
		if res.Error != nil {
			return fmt.Errorf("update ticket: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrConflict
		}
		for _, e := range entries {
			if err := s.audit.record(tx, t.ID, actor, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	t, err = s.load(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Close lets the creating client close its ticket. The bool reports whether
// anything changed; closing a closed ticket is a successful no-op.
func (s *TicketService) Close(ctx context.Context, actor model.Actor, id uint64) (*model.Ticket, bool, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if actor.Role != model.RoleCliente || t.CreatedBy != actor.ID {
		return nil, false, errs.Denied("only the client who opened the ticket can close it")
	}
	if t.Status == model.TicketStatusClosed {
		return t, false, nil
	}

	closed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Ticket{}).
			Where("id = ? AND status <> ?", t.ID, model.TicketStatusClosed).
			Updates(map[string]interface{}{
				"status":    model.TicketStatusClosed,
				"closed_at": s.opts.Clock(),
			})
		if res.Error != nil {
			return fmt.Errorf("close ticket: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		closed = true
		return s.audit.record(tx, t.ID, actor, auditEntry{
			action:      ActionTicketClosed,
			description: "client closed the ticket",
		})
	})
	if err != nil {
		return nil, false, err
	}
	t, err = s.load(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}
	return t, closed, nil
}

// Delete removes the ticket. The deletion is logged first; logs are kept.
func (s *TicketService) Delete(ctx context.Context, actor model.Actor, id uint64) error {
	if actor.Role != model.RoleAdmin {
		return errs.Denied("only administrators can delete tickets")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.audit.record(tx, t.ID, actor, auditEntry{
			action:      ActionTicketDeleted,
			description: "ticket deleted by administrator",
		}); err != nil {
			return err
		}
		res := tx.Delete(&model.Ticket{}, t.ID)
		if res.Error != nil {
			return fmt.Errorf("delete ticket: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrTicketNotFound
		}
		return nil
	})
}

// Claim assigns an unassigned ticket to the calling technician. The bool is
// false when someone already holds the ticket, including a concurrent
// claimer that won the race.
func (s *TicketService) Claim(ctx context.Context, actor model.Actor, id uint64) (*model.Ticket, bool, error) {
	if actor.Role != model.RoleTecnico {
		return nil, false, errs.Denied("only technicians can claim tickets")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if t.AssignedTo != nil {
		return t, false, nil
	}

	claimed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Ticket{}).
			Where("id = ? AND assigned_to IS NULL", t.ID).
			Updates(map[string]interface{}{
				"assigned_to": actor.ID,
				"status":      model.TicketStatusInProgress,
			})
		if res.Error != nil {
			return fmt.Errorf("claim ticket: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true
		return s.audit.record(tx, t.ID, actor, auditEntry{
			action:      ActionTicketClaimed,
			description: "technician claimed the ticket",
		})
	})
	if err != nil {
		return nil, false, err
	}
	t, err = s.load(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}
	return t, claimed, nil
}

func sameAssignee(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nullableID(id *uint64) interface{} {
	if id == nil {
		return gorm.Expr("NULL")
	}
	return *id
}

func whereAssignee(q *gorm.DB, id *uint64) *gorm.DB {
	if id == nil {
		return q.Where("assigned_to IS NULL")
	}
	return q.Where("assigned_to = ?", *id)
}
