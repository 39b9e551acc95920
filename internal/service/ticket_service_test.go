package service_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/service"
)

func TestCreateTicket(t *testing.T) {
	f := setup(t)

	tk, err := f.svc.Create(t.Context(), f.client.Actor(), service.CreateInput{
		Subject:     "  Printer broken ",
		Description: "The printer on floor 2 is jammed and won't print",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.ID == 0 {
		t.Fatalf("expected id to be set")
	}
	if tk.Subject != "Printer broken" {
		t.Fatalf("expected trimmed subject, got %q", tk.Subject)
	}
	if tk.Status != model.TicketStatusOpen {
		t.Fatalf("expected status open, got %q", tk.Status)
	}
	if tk.CreatedBy != f.client.ID {
		t.Fatalf("expected created_by %d, got %d", f.client.ID, tk.CreatedBy)
	}
	if tk.AssignedTo != nil || tk.ClosedAt != nil {
		t.Fatalf("expected assigned_to and closed_at to be nil, got %v %v", tk.AssignedTo, tk.ClosedAt)
	}

	logs := f.logs(t, tk.ID)
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Action != service.ActionTicketCreated {
		t.Fatalf("expected action %q, got %q", service.ActionTicketCreated, logs[0].Action)
	}
	if logs[0].UserID == nil || *logs[0].UserID != f.client.ID {
		t.Fatalf("expected log actor %d, got %v", f.client.ID, logs[0].UserID)
	}
	if logs[0].CreatedAt.IsZero() {
		t.Fatalf("expected log timestamp to be set")
	}
}

func TestCreateTicketValidation(t *testing.T) {
	cases := []struct {
		name  string
		in    service.CreateInput
		field string
	}{
		{"missing subject", service.CreateInput{Subject: "   ", Description: "long enough description"}, "subject"},
		{"subject too long", service.CreateInput{Subject: strings.Repeat("a", 256), Description: "long enough description"}, "subject"},
		{"missing description", service.CreateInput{Subject: "Printer"}, "description"},
		{"description too short", service.CreateInput{Subject: "Printer", Description: "too short"}, "description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.svc.Create(t.Context(), f.client.Actor(), tc.in)
			var verr *errs.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
			var n int64
			f.db.Model(&model.Ticket{}).Count(&n)
			if n != 0 {
				t.Fatalf("expected no tickets, got %d", n)
			}
			f.db.Model(&model.TicketLog{}).Count(&n)
			if n != 0 {
				t.Fatalf("expected no logs, got %d", n)
			}
		})
	}
}

func TestCreateTicketSubjectAtLimit(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(t.Context(), f.client.Actor(), service.CreateInput{
		Subject:     strings.Repeat("é", 255),
		Description: "exactly ten",
	})
	if err != nil {
		t.Fatalf("expected 255 characters to be accepted, got %v", err)
	}
}

func TestCreateTicketRoleGate(t *testing.T) {
	f := setup(t)
	for _, u := range []model.User{f.admin, f.tech} {
		_, err := f.svc.Create(t.Context(), u.Actor(), service.CreateInput{Subject: "x", Description: "long enough description"})
		if !errs.IsPermissionDenied(err) {
			t.Fatalf("%s: expected permission denied, got %v", u.Role, err)
		}
	}

	open := setupWith(t, service.Options{ClientOnlyCreate: false})
	tk, err := open.svc.Create(t.Context(), open.tech.Actor(), service.CreateInput{Subject: "x", Description: "long enough description"})
	if err != nil {
		t.Fatalf("expected permissive create to succeed, got %v", err)
	}
	if tk.CreatedBy != open.tech.ID {
		t.Fatalf("expected created_by %d, got %d", open.tech.ID, tk.CreatedBy)
	}

	_, err = open.svc.Create(t.Context(), model.Actor{ID: 99, Role: "root"}, service.CreateInput{Subject: "x", Description: "long enough description"})
	if !errs.IsPermissionDenied(err) {
		t.Fatalf("expected unknown role to be denied, got %v", err)
	}
}

func TestGetTicketVisibility(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Monitor flickers")

	cases := []struct {
		actor model.User
		allow bool
	}{
		{f.admin, true},
		{f.client, true},
		{f.client2, false},
		{f.tech, true},
		{f.tech2, false},
	}
	for _, tc := range cases {
		detail, err := f.svc.Get(t.Context(), tc.actor.Actor(), tk.ID)
		if tc.allow {
			if err != nil {
				t.Fatalf("%s: expected access, got %v", tc.actor.Email, err)
			}
			if len(detail.Logs) != 2 {
				t.Fatalf("%s: expected 2 logs, got %d", tc.actor.Email, len(detail.Logs))
			}
			continue
		}
		if !errs.IsPermissionDenied(err) {
			t.Fatalf("%s: expected permission denied, got %v", tc.actor.Email, err)
		}
	}

	if _, err := f.svc.Get(t.Context(), f.admin.Actor(), 4242); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditForm(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "VPN drops")

	if _, err := f.svc.EditForm(t.Context(), f.client.Actor(), tk.ID); !errs.IsPermissionDenied(err) {
		t.Fatalf("expected owner client to be denied, got %v", err)
	}
	if _, err := f.svc.EditForm(t.Context(), f.tech2.Actor(), tk.ID); !errs.IsPermissionDenied(err) {
		t.Fatalf("expected unassigned technician to be denied, got %v", err)
	}

	form, err := f.svc.EditForm(t.Context(), f.tech.Actor(), tk.ID)
	if err != nil {
		t.Fatalf("technician edit form: %v", err)
	}
	if form.Technicians != nil {
		t.Fatalf("expected no technician list for technician, got %d", len(form.Technicians))
	}
	for _, s := range form.Statuses {
		if s == model.TicketStatusClosed {
			t.Fatalf("technician must not be offered closed")
		}
	}

	form, err = f.svc.EditForm(t.Context(), f.admin.Actor(), tk.ID)
	if err != nil {
		t.Fatalf("admin edit form: %v", err)
	}
	if len(form.Technicians) != 2 {
		t.Fatalf("expected 2 technicians, got %d", len(form.Technicians))
	}
	for _, u := range form.Technicians {
		if u.Role != model.RoleTecnico {
			t.Fatalf("unexpected role %q in technician list", u.Role)
		}
	}
	if len(form.Statuses) != len(model.TicketStatuses) {
		t.Fatalf("expected all statuses for admin, got %v", form.Statuses)
	}
}

func TestUpdateRoleGates(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Mail bounce")

	in := service.UpdateInput{Status: string(model.TicketStatusFinished)}
	if _, _, err := f.svc.Update(t.Context(), f.client.Actor(), tk.ID, in); !errs.IsPermissionDenied(err) {
		t.Fatalf("expected client to be denied, got %v", err)
	}
	if _, _, err := f.svc.Update(t.Context(), f.tech2.Actor(), tk.ID, in); !errs.IsPermissionDenied(err) {
		t.Fatalf("expected unassigned technician to be denied, got %v", err)
	}
	if got := f.reload(t, tk.ID); got.Status != model.TicketStatusInProgress {
		t.Fatalf("expected status unchanged, got %q", got.Status)
	}
}

func TestUpdateTechnicianCannotClose(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Laptop battery")
	before := len(f.logs(t, tk.ID))

	for _, in := range []service.UpdateInput{
		{Status: "closed"},
		{Status: "closed", AssignedTo: ptr(f.tech2.ID)},
		{Status: " closed "},
	} {
		_, _, err := f.svc.Update(t.Context(), f.tech.Actor(), tk.ID, in)
		if !errs.IsPermissionDenied(err) {
			t.Fatalf("expected permission denied for %+v, got %v", in, err)
		}
	}
	got := f.reload(t, tk.ID)
	if got.Status != model.TicketStatusInProgress || got.ClosedAt != nil {
		t.Fatalf("expected ticket untouched, got status=%q closed_at=%v", got.Status, got.ClosedAt)
	}
	if !got.IsAssignedTo(f.tech.ID) {
		t.Fatalf("expected assignee unchanged")
	}
	if n := len(f.logs(t, tk.ID)); n != before {
		t.Fatalf("expected %d logs, got %d", before, n)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	f := setup(t)
	tk := f.open(t, f.client, "Keyboard")

	for _, st := range []string{"", "reopened", "CLOSED"} {
		_, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{Status: st})
		if !errs.IsValidation(err) {
			t.Fatalf("status %q: expected validation error, got %v", st, err)
		}
	}
}

func TestUpdateAssignRequiresTechnician(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Projector")

	for _, target := range []model.User{f.client2, f.admin} {
		_, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
			Status:     string(model.TicketStatusInProgress),
			AssignedTo: ptr(target.ID),
		})
		if !errs.IsPermissionDenied(err) {
			t.Fatalf("assigning %s: expected permission denied, got %v", target.Role, err)
		}
	}

	_, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
		Status:     string(model.TicketStatusInProgress),
		AssignedTo: ptr(9999),
	})
	if !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}

	if got := f.reload(t, tk.ID); !got.IsAssignedTo(f.tech.ID) {
		t.Fatalf("expected assignee to stay %d, got %v", f.tech.ID, got.AssignedTo)
	}
	if n := len(f.logs(t, tk.ID)); n != 2 {
		t.Fatalf("expected 2 logs, got %d", n)
	}
}

func TestUpdateAdminAssignAndStatus(t *testing.T) {
	f := setup(t)
	tk := f.open(t, f.client, "Shared drive")

	got, changed, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
		Status:     string(model.TicketStatusWaitingClient),
		AssignedTo: ptr(f.tech2.ID),
	})
	if err != nil || !changed {
		t.Fatalf("update: changed=%v err=%v", changed, err)
	}
	if !got.IsAssignedTo(f.tech2.ID) || got.Status != model.TicketStatusWaitingClient {
		t.Fatalf("unexpected ticket after update: %+v", got)
	}

	logs := f.logs(t, tk.ID)
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	assign, status := logs[1], logs[2]
	if assign.Action != service.ActionTechnicianAssigned || *assign.Description != "Assigned to user ID "+itoa(f.tech2.ID) {
		t.Fatalf("unexpected assignment log: %s %v", assign.Action, *assign.Description)
	}
	if status.Action != service.ActionStatusChanged || *status.Description != "Status changed from open to waiting_client" {
		t.Fatalf("unexpected status log: %s %v", status.Action, *status.Description)
	}
	for _, l := range logs[1:] {
		if l.UserID == nil || *l.UserID != f.admin.ID {
			t.Fatalf("expected admin as actor, got %v", l.UserID)
		}
	}

	// unassigning records "none"
	if _, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
		Status: string(model.TicketStatusWaitingClient),
	}); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	logs = f.logs(t, tk.ID)
	if len(logs) != 4 || *logs[3].Description != "Assigned to user ID none" {
		t.Fatalf("expected unassignment log, got %d logs", len(logs))
	}
	if got := f.reload(t, tk.ID); got.AssignedTo != nil {
		t.Fatalf("expected ticket to be unassigned, got %v", *got.AssignedTo)
	}
}

func TestUpdateWithoutChangesLogsNothing(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Phone")

	before := f.reload(t, tk.ID)
	got, changed, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
		Status:     string(model.TicketStatusInProgress),
		AssignedTo: ptr(f.tech.ID),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed {
		t.Fatalf("expected an unchanged ticket to report no change")
	}
	if !got.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected no write, updated_at moved from %v to %v", before.UpdatedAt, got.UpdatedAt)
	}
	if n := len(f.logs(t, tk.ID)); n != 2 {
		t.Fatalf("expected 2 logs, got %d", n)
	}
}

func TestUpdateTechnicianAssignmentIgnored(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Scanner")

	got, changed, err := f.svc.Update(t.Context(), f.tech.Actor(), tk.ID, service.UpdateInput{
		Status:     string(model.TicketStatusFinished),
		AssignedTo: ptr(f.tech2.ID),
	})
	if err != nil || !changed {
		t.Fatalf("update: changed=%v err=%v", changed, err)
	}
	if !got.IsAssignedTo(f.tech.ID) {
		t.Fatalf("expected technician assignment request to be ignored, got %v", got.AssignedTo)
	}
	logs := f.logs(t, tk.ID)
	if len(logs) != 3 || logs[2].Action != service.ActionStatusChanged {
		t.Fatalf("expected only a status log to be added, got %d logs", len(logs))
	}
}

func TestUpdateClosedAtIsKept(t *testing.T) {
	f := setup(t)
	tk := f.open(t, f.client, "Badge reader")

	closed, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{Status: "closed"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	checkClosedAt(t, *closed)
	if closed.ClosedAt == nil {
		t.Fatalf("expected closed_at to be set")
	}
	stamp := *closed.ClosedAt

	reopened, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{Status: "open"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ClosedAt == nil || !reopened.ClosedAt.Equal(stamp) {
		t.Fatalf("expected closed_at %v to persist, got %v", stamp, reopened.ClosedAt)
	}
}

func TestCloseTicket(t *testing.T) {
	f := setup(t)
	tk := f.claimed(t, f.client, f.tech, "Wifi")

	for _, u := range []model.User{f.admin, f.tech, f.client2} {
		if _, _, err := f.svc.Close(t.Context(), u.Actor(), tk.ID); !errs.IsPermissionDenied(err) {
			t.Fatalf("%s: expected permission denied, got %v", u.Email, err)
		}
	}

	got, changed, err := f.svc.Close(t.Context(), f.client.Actor(), tk.ID)
	if err != nil || !changed {
		t.Fatalf("close: changed=%v err=%v", changed, err)
	}
	if got.Status != model.TicketStatusClosed || got.ClosedAt == nil {
		t.Fatalf("expected closed ticket with closed_at, got %+v", got)
	}
	stamp := *got.ClosedAt
	logs := f.logs(t, tk.ID)
	last := logs[len(logs)-1]
	if last.Action != service.ActionTicketClosed || *last.Description != "client closed the ticket" {
		t.Fatalf("unexpected close log: %s", last.Action)
	}

	again, changed, err := f.svc.Close(t.Context(), f.client.Actor(), tk.ID)
	if err != nil || changed {
		t.Fatalf("second close: changed=%v err=%v", changed, err)
	}
	if !again.ClosedAt.Equal(stamp) {
		t.Fatalf("expected closed_at to stay %v, got %v", stamp, again.ClosedAt)
	}
	if n := len(f.logs(t, tk.ID)); n != len(logs) {
		t.Fatalf("expected no new log, got %d (was %d)", n, len(logs))
	}
}

func TestDeleteTicket(t *testing.T) {
	f := setup(t)
	tk := f.open(t, f.client, "Old request")

	for _, u := range []model.User{f.client, f.tech} {
		if err := f.svc.Delete(t.Context(), u.Actor(), tk.ID); !errs.IsPermissionDenied(err) {
			t.Fatalf("%s: expected permission denied, got %v", u.Role, err)
		}
	}

	if err := f.svc.Delete(t.Context(), f.admin.Actor(), tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(t.Context(), f.admin.Actor(), tk.ID); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("expected ticket to be gone, got %v", err)
	}

	logs := f.logs(t, tk.ID)
	if len(logs) != 2 {
		t.Fatalf("expected audit trail to survive deletion, got %d logs", len(logs))
	}
	if logs[1].Action != service.ActionTicketDeleted || *logs[1].UserID != f.admin.ID {
		t.Fatalf("unexpected delete log: %+v", logs[1])
	}

	if err := f.svc.Delete(t.Context(), f.admin.Actor(), tk.ID); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestClaimTicket(t *testing.T) {
	f := setup(t)
	tk := f.open(t, f.client, "Printer toner")

	for _, u := range []model.User{f.admin, f.client} {
		if _, _, err := f.svc.Claim(t.Context(), u.Actor(), tk.ID); !errs.IsPermissionDenied(err) {
			t.Fatalf("%s: expected permission denied, got %v", u.Role, err)
		}
	}

	got, claimed, err := f.svc.Claim(t.Context(), f.tech.Actor(), tk.ID)
	if err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}
	if !got.IsAssignedTo(f.tech.ID) || got.Status != model.TicketStatusInProgress {
		t.Fatalf("unexpected claimed ticket: %+v", got)
	}

	before := f.reload(t, tk.ID)
	again, claimed, err := f.svc.Claim(t.Context(), f.tech2.Actor(), tk.ID)
	if err != nil || claimed {
		t.Fatalf("second claim: claimed=%v err=%v", claimed, err)
	}
	if !again.IsAssignedTo(f.tech.ID) || !again.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected no mutation on second claim")
	}
	logs := f.logs(t, tk.ID)
	if len(logs) != 2 || logs[1].Action != service.ActionTicketClaimed {
		t.Fatalf("expected exactly one claim log, got %d logs", len(logs))
	}
}

func TestPrinterScenario(t *testing.T) {
	f := setup(t)
	a, b, c := f.client, f.tech, f.tech2

	tk, err := f.svc.Create(t.Context(), a.Actor(), service.CreateInput{
		Subject:     "Printer broken",
		Description: "The printer on floor 2 is jammed and won't print",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.Status != model.TicketStatusOpen || tk.AssignedTo != nil {
		t.Fatalf("unexpected new ticket: %+v", tk)
	}

	if _, ok, err := f.svc.Claim(t.Context(), b.Actor(), tk.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if _, _, err := f.svc.Update(t.Context(), f.admin.Actor(), tk.ID, service.UpdateInput{
		Status:     string(model.TicketStatusInProgress),
		AssignedTo: ptr(c.ID),
	}); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if _, _, err := f.svc.Update(t.Context(), c.Actor(), tk.ID, service.UpdateInput{
		Status: string(model.TicketStatusFinished),
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	final, _, err := f.svc.Close(t.Context(), a.Actor(), tk.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if final.Status != model.TicketStatusClosed || final.ClosedAt == nil || !final.IsAssignedTo(c.ID) {
		t.Fatalf("unexpected final ticket: %+v", final)
	}

	logs := f.logs(t, tk.ID)
	want := []struct {
		action string
		actor  uint64
	}{
		{service.ActionTicketCreated, a.ID},
		{service.ActionTicketClaimed, b.ID},
		{service.ActionTechnicianAssigned, f.admin.ID},
		{service.ActionStatusChanged, c.ID},
		{service.ActionTicketClosed, a.ID},
	}
	if len(logs) != len(want) {
		t.Fatalf("expected %d logs, got %d", len(want), len(logs))
	}
	for i, w := range want {
		if logs[i].Action != w.action || *logs[i].UserID != w.actor {
			t.Fatalf("log %d: expected %s by %d, got %s by %d", i, w.action, w.actor, logs[i].Action, *logs[i].UserID)
		}
		if i > 0 && !logs[i].CreatedAt.After(logs[i-1].CreatedAt) {
			t.Fatalf("log %d is not after log %d", i, i-1)
		}
	}
}
