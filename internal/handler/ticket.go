package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/kafka"
	"github.com/psds-microservice/helpdesk-service/internal/metrics"
	"github.com/psds-microservice/helpdesk-service/internal/middleware"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/service"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	ProduceAsync(event kafka.TicketEvent)
}

// SearchIndexer is satisfied by *searchindex.Client.
type SearchIndexer interface {
	IndexTicketAsync(t *model.Ticket)
}

type TicketHandler struct {
	log     *slog.Logger
	svc     service.TicketServicer
	events  EventPublisher
	search  SearchIndexer
	metrics *metrics.Metrics
}

func NewTicketHandler(log *slog.Logger, svc service.TicketServicer, events EventPublisher, search SearchIndexer, m *metrics.Metrics) *TicketHandler {
	return &TicketHandler{log: log, svc: svc, events: events, search: search, metrics: m}
}

const ticketsPath = "/api/v1/tickets"

func ticketPath(id uint64) string {
	return ticketsPath + "/" + strconv.FormatUint(id, 10)
}

func (h *TicketHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	f := service.ListFilter{
		Search: c.Query("q"),
		Status: c.Query("status"),
		From:   c.Query("from"),
		To:     c.Query("to"),
	}
	var err error
	if f.ClientID, err = optionalID(c, "client_id"); err != nil {
		h.fail(c, "list", actor, err, nil)
		return
	}
	if f.TechnicianID, err = optionalID(c, "technician_id"); err != nil {
		h.fail(c, "list", actor, err, nil)
		return
	}
	if f.Limit, err = optionalInt(c, "limit"); err != nil {
		h.fail(c, "list", actor, err, nil)
		return
	}
	if f.Offset, err = optionalInt(c, "offset"); err != nil {
		h.fail(c, "list", actor, err, nil)
		return
	}

	res, err := h.svc.List(c.Request.Context(), actor, f)
	if err != nil {
		h.fail(c, "list", actor, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TicketHandler) Filters(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	opts, err := h.svc.FilterOptions(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, "filters", actor, err, nil)
		return
	}
	c.JSON(http.StatusOK, opts)
}

type createTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "create", actor, errs.Invalid("body", "invalid json"), nil)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), actor, service.CreateInput{
		Subject:     req.Subject,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, "create", actor, err, req)
		return
	}
	h.committed(kafka.EventTicketCreated, service.ActionTicketCreated, actor, t.ID, t)
	c.JSON(http.StatusCreated, gin.H{
		"ticket":   t,
		"message":  "ticket created",
		"redirect": ticketsPath,
	})
}

func (h *TicketHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	detail, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, "read", actor, err, nil)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *TicketHandler) Edit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	form, err := h.svc.EditForm(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, "edit", actor, err, nil)
		return
	}
	c.JSON(http.StatusOK, form)
}

type updateTicketRequest struct {
	Status     string  `json:"status"`
	AssignedTo *uint64 `json:"assigned_to"`
}

func (h *TicketHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "update", actor, errs.Invalid("body", "invalid json"), nil)
		return
	}
	t, changed, err := h.svc.Update(c.Request.Context(), actor, id, service.UpdateInput{
		Status:     req.Status,
		AssignedTo: req.AssignedTo,
	})
	if err != nil {
		h.fail(c, "update", actor, err, req)
		return
	}
	msg := "nothing to update"
	if changed {
		msg = "ticket updated"
		h.committed(kafka.EventTicketUpdated, "ticket updated", actor, t.ID, t)
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":   t,
		"changed":  changed,
		"message":  msg,
		"redirect": ticketPath(t.ID),
	})
}

func (h *TicketHandler) Close(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	t, changed, err := h.svc.Close(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, "close", actor, err, nil)
		return
	}
	msg := "ticket already closed"
	if changed {
		msg = "ticket closed"
		h.committed(kafka.EventTicketClosed, service.ActionTicketClosed, actor, t.ID, t)
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":   t,
		"changed":  changed,
		"message":  msg,
		"redirect": ticketPath(t.ID),
	})
}

func (h *TicketHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		h.fail(c, "delete", actor, err, nil)
		return
	}
	h.committed(kafka.EventTicketDeleted, service.ActionTicketDeleted, actor, id, nil)
	c.JSON(http.StatusOK, gin.H{
		"message":  "ticket deleted",
		"redirect": ticketsPath,
	})
}

func (h *TicketHandler) Claim(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.id(c, actor)
	if !ok {
		return
	}
	t, claimed, err := h.svc.Claim(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, "claim", actor, err, nil)
		return
	}
	msg := "ticket already assigned"
	if claimed {
		msg = "ticket claimed"
		h.committed(kafka.EventTicketClaimed, service.ActionTicketClaimed, actor, t.ID, t)
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":   t,
		"claimed":  claimed,
		"message":  msg,
		"redirect": ticketsPath,
	})
}

func (h *TicketHandler) Me(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, actor)
}

// committed fans a successful mutation out to the best-effort side channels.
func (h *TicketHandler) committed(event, action string, actor model.Actor, id uint64, t *model.Ticket) {
	h.metrics.TicketAction(action, string(actor.Role))
	h.events.ProduceAsync(kafka.NewTicketEvent(event, actor, id, t))
	if t != nil {
		h.search.IndexTicketAsync(t)
	}
}

func (h *TicketHandler) actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "code": "unauthorized"})
		return model.Actor{}, false
	}
	return actor, true
}

func (h *TicketHandler) id(c *gin.Context, actor model.Actor) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.fail(c, "parse", actor, errs.Invalid("id", "invalid id"), nil)
		return 0, false
	}
	return id, true
}

// fail maps the error taxonomy to HTTP. input, when set, is echoed back so
// the caller can re-render its form.
func (h *TicketHandler) fail(c *gin.Context, op string, actor model.Actor, err error, input any) {
	status, code := http.StatusInternalServerError, "internal_error"
	msg := "internal error"
	var verr *errs.ValidationError
	var perr *errs.PermissionDenied
	switch {
	case errors.As(err, &verr):
		status, code, msg = http.StatusBadRequest, "validation_error", verr.Error()
	case errors.As(err, &perr):
		status, code, msg = http.StatusForbidden, "permission_denied", perr.Error()
		h.metrics.PermissionDenied(op, string(actor.Role))
	case errs.IsNotFound(err):
		status, code, msg = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, errs.ErrConflict):
		status, code, msg = http.StatusConflict, "conflict", err.Error()
	default:
		h.log.Error("ticket_"+op+"_failed",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.Uint64("actor_id", actor.ID),
			slog.String("err", err.Error()),
		)
	}
	body := gin.H{
		"error":      msg,
		"code":       code,
		"request_id": middleware.GetRequestID(c),
	}
	if input != nil && status != http.StatusInternalServerError {
		body["input"] = input
	}
	c.JSON(status, body)
}

func optionalID(c *gin.Context, key string) (*uint64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, errs.Invalid(key, "must be a user id")
	}
	return &id, nil
}

func optionalInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Invalid(key, "must be an integer")
	}
	return n, nil
}
