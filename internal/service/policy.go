package service

import (
	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
)

// canRead: admin always, cliente only its own tickets, tecnico only tickets
// assigned to it.
func canRead(a model.Actor, t *model.Ticket) error {
	switch a.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleCliente:
		if t.CreatedBy == a.ID {
			return nil
		}
		return errs.Denied("you cannot view this ticket")
	case model.RoleTecnico:
		if t.IsAssignedTo(a.ID) {
			return nil
		}
		return errs.Denied("you cannot view this ticket")
	}
	return errs.Denied("unknown role")
}

// canEdit is canRead minus clients: they may only close.
func canEdit(a model.Actor, t *model.Ticket) error {
	switch a.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleCliente:
		return errs.Denied("you are not allowed to edit this ticket")
	case model.RoleTecnico:
		if t.IsAssignedTo(a.ID) {
			return nil
		}
		return errs.Denied("you cannot edit this ticket")
	}
	return errs.Denied("unknown role")
}

// allowedStatuses is what the actor may pick when updating a ticket.
func allowedStatuses(role model.Role) []model.TicketStatus {
	switch role {
	case model.RoleAdmin:
		return append([]model.TicketStatus(nil), model.TicketStatuses...)
	case model.RoleTecnico:
		out := make([]model.TicketStatus, 0, len(model.TicketStatuses)-1)
		for _, s := range model.TicketStatuses {
			if s != model.TicketStatusClosed {
				out = append(out, s)
			}
		}
		return out
	case model.RoleCliente:
		return nil
	}
	return nil
}
