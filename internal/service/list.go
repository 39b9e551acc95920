package service

import (
	"context"
	"strings"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"gorm.io/gorm"
)

// StatusAll is the status filter value that disables status filtering.
const StatusAll = "todos"

const dateLayout = "2006-01-02"

// ListFilter holds the listing query. ClientID and TechnicianID only apply
// to admins. From and To are inclusive calendar dates (YYYY-MM-DD, UTC).
type ListFilter struct {
	Search       string
	Status       string
	From         string
	To           string
	ClientID     *uint64
	TechnicianID *uint64
	Limit        int
	Offset       int
}

type ListResult struct {
	Tickets []model.Ticket `json:"tickets"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type FilterOptions struct {
	Clients     []model.User `json:"clients"`
	Technicians []model.User `json:"technicians"`
}

func (s *TicketService) List(ctx context.Context, actor model.Actor, f ListFilter) (*ListResult, error) {
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})

	switch actor.Role {
	case model.RoleCliente:
		tx = tx.Where("created_by = ?", actor.ID)
	case model.RoleTecnico:
		tx = tx.Where("assigned_to = ?", actor.ID)
	case model.RoleAdmin:
		if f.ClientID != nil {
			tx = tx.Where("created_by = ?", *f.ClientID)
		}
		if f.TechnicianID != nil {
			tx = tx.Where("assigned_to = ?", *f.TechnicianID)
		}
	default:
		return nil, errs.Denied("unknown role")
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		tx = tx.Where(`LOWER(subject) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(q))+"%")
	}

	if st := strings.TrimSpace(f.Status); st != "" && st != StatusAll {
		status := model.TicketStatus(st)
		if !status.Valid() {
			return nil, errs.Invalid("status", "unknown status %q", st)
		}
		tx = tx.Where("status = ?", status)
	}

	var err error
	if tx, err = applyDateRange(tx, f.From, f.To); err != nil {
		return nil, err
	}

	limit, offset, err := s.page(f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}

	tx = tx.Session(&gorm.Session{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}
	items := make([]model.Ticket, 0)
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ListResult{Tickets: items, Total: total, Limit: limit, Offset: offset}, nil
}

// FilterOptions returns the client and technician pickers of the admin
// listing.
func (s *TicketService) FilterOptions(ctx context.Context, actor model.Actor) (*FilterOptions, error) {
	if actor.Role != model.RoleAdmin {
		return nil, errs.Denied("only administrators can filter by client or technician")
	}
	clients, err := s.users.ListByRole(ctx, model.RoleCliente)
	if err != nil {
		return nil, err
	}
	techs, err := s.users.ListByRole(ctx, model.RoleTecnico)
	if err != nil {
		return nil, err
	}
	return &FilterOptions{Clients: clients, Technicians: techs}, nil
}

func (s *TicketService) page(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, errs.Invalid("offset", "must not be negative")
	}
	if limit < 0 {
		return 0, 0, errs.Invalid("limit", "must not be negative")
	}
	if limit == 0 {
		limit = s.opts.DefaultListLimit
	}
	if limit > s.opts.MaxListLimit {
		limit = s.opts.MaxListLimit
	}
	return limit, offset, nil
}

func applyDateRange(tx *gorm.DB, from, to string) (*gorm.DB, error) {
	if from = strings.TrimSpace(from); from != "" {
		d, err := time.Parse(dateLayout, from)
		if err != nil {
			return nil, errs.Invalid("from", "must be a date in YYYY-MM-DD format")
		}
		tx = tx.Where("created_at >= ?", d)
	}
	if to = strings.TrimSpace(to); to != "" {
		d, err := time.Parse(dateLayout, to)
		if err != nil {
			return nil, errs.Invalid("to", "must be a date in YYYY-MM-DD format")
		}
		tx = tx.Where("created_at < ?", d.AddDate(0, 0, 1))
	}
	return tx, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
