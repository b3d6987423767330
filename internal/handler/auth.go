package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/evaluator/internal/model"
)

const bearerPrefix = "Bearer "

// requireAuth accepts either HTTP basic credentials or a bearer token issued
// by POST /api/tokens, and stores the active user in the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			user *model.User
			err  error
		)
		if token, ok := bearerToken(r); ok {
			user, err = h.userFromToken(r.Context(), token)
		} else if username, password, ok := r.BasicAuth(); ok {
			user, err = h.checkPassword(r.Context(), username, password)
		}
		if err != nil {
			slog.Error("authentication lookup failed", "error", err)
			sendError(w, http.StatusInternalServerError, h.msg(r, "InternalError"))
			return
		}
		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="evaluator"`)
			sendError(w, http.StatusUnauthorized, h.msg(r, "AuthRequired"))
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				sendError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			sendError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
	return token, token != ""
}

func (h *Handler) userFromToken(ctx context.Context, token string) (*model.User, error) {
	sess, err := h.store.GetAuthSession(ctx, token)
	if err != nil || sess == nil {
		return nil, err
	}
	user, err := h.store.GetUserByID(ctx, sess.UserID)
	if err != nil || user == nil || !user.Active {
		return nil, err
	}
	return user, nil
}

// checkPassword returns nil without error when the credentials do not match
// an active user.
func (h *Handler) checkPassword(ctx context.Context, username, password string) (*model.User, error) {
	user, err := h.store.GetUserByUsername(ctx, username)
	if err != nil || user == nil || !user.Active {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return user, nil
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="evaluator"`)
		sendError(w, http.StatusUnauthorized, h.msg(r, "AuthRequired"))
		return
	}

	user, err := h.checkPassword(r.Context(), username, password)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	if user == nil {
		slog.Warn("login failed", "username", username)
		sendError(w, http.StatusUnauthorized, h.msg(r, "InvalidCredentials"))
		return
	}

	sess, err := h.store.CreateAuthSession(r.Context(), user.ID)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	slog.Info("issued api token", "user_id", user.ID)
	h.sendSuccess(w, r, http.StatusCreated, tokenResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := bearerToken(r); ok {
		if err := h.store.DeleteAuthSession(r.Context(), token); err != nil {
			h.sendErr(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
