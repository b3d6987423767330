package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/evaluator/internal/model"
	"github.com/pavelanni/evaluator/internal/store"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	h.sendSuccess(w, r, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,max=64"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password" validate:"required,min=8"`
	Role        model.UserRole `json:"role" validate:"required,oneof=student teacher admin"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	u.ID = id
	h.sendSuccess(w, r, http.StatusCreated, u)
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, h.msg(r, "InvalidRequest"))
		return
	}

	var req setActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.store.SetUserActive(r.Context(), id, *req.Active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusNotFound, h.msg(r, "UserNotFound"))
			return
		}
		h.sendErr(w, r, err)
		return
	}
	slog.Info("user active flag changed", "id", id, "active", *req.Active)
	w.WriteHeader(http.StatusNoContent)
}
