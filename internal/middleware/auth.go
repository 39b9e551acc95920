package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpdesk-service/internal/auth"
	"github.com/psds-microservice/helpdesk-service/internal/errs"
	"github.com/psds-microservice/helpdesk-service/internal/model"
)

const ctxActorKey = "actor"

// UserLookup resolves the token subject to the stored user.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// Authenticate validates the bearer token and stores the caller's Actor in
// the gin context. The role always comes from the users table.
func Authenticate(log *slog.Logger, tokens *auth.Tokens, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := tokens.Subject(strings.TrimSpace(h[len("Bearer "):]))
		if err != nil {
			log.Warn("auth_invalid_token", slog.String("request_id", GetRequestID(c)), slog.String("err", err.Error()))
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, errs.ErrUserNotFound) {
				abort(c, http.StatusUnauthorized, "user not found")
				return
			}
			log.Error("auth_user_lookup_failed", slog.Uint64("user_id", userID), slog.String("err", err.Error()))
			abort(c, http.StatusInternalServerError, "internal error")
			return
		}
		if !user.Role.Valid() {
			abort(c, http.StatusForbidden, "user has no valid role")
			return
		}
		c.Set(ctxActorKey, user.Actor())
		c.Next()
	}
}

// ActorFrom returns the actor set by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ctxActorKey)
	if !ok {
		return model.Actor{}, false
	}
	a, ok := v.(model.Actor)
	return a, ok
}

func abort(c *gin.Context, status int, msg string) {
	code := "unauthorized"
	switch status {
	case http.StatusForbidden:
		code = "permission_denied"
	case http.StatusInternalServerError:
		code = "internal_error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"code":       code,
		"request_id": GetRequestID(c),
	})
}
