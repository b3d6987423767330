package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pavelanni/evaluator/internal/grading"
	appI18n "github.com/pavelanni/evaluator/internal/i18n"
	"github.com/pavelanni/evaluator/internal/model"
	"github.com/pavelanni/evaluator/internal/store"
)

// Pinger reports whether a provider backend is reachable.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	engine   *grading.Engine
	reeval   *grading.ReevaluationCoordinator
	policy   model.RolePolicy
	catalog  *appI18n.Catalog
	validate *validator.Validate
	pingers  []Pinger
	logger   *slog.Logger
}

// New creates a new Handler. pingers are checked by the health endpoint.
func New(s *store.Store, engine *grading.Engine, catalog *appI18n.Catalog, logger *slog.Logger, pingers ...Pinger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		store:    s,
		engine:   engine,
		catalog:  catalog,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		pingers:  pingers,
		logger:   logger.With("component", "handler"),
	}
	h.reeval = engine.Reevaluator(s, h.policy)
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(appI18n.Middleware(h.catalog))

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/tokens", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Delete("/api/tokens", h.handleLogout)

		r.Get("/api/submissions/{id}", h.handleGetSubmission)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Post("/api/submissions", h.handleCreateSubmission)
			r.Get("/api/submissions", h.handleListSubmissions)
			r.Put("/api/submissions/{id}/review", h.handleReview)
			r.Post("/api/submissions/reevaluate", h.handleReevaluate)
			r.Get("/api/stats", h.handleStats)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Put("/users/{userID}/active", h.handleSetUserActive)
		})
	})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Providers: make(map[string]string, len(h.pingers))}
	if r.URL.Query().Get("deep") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for _, p := range h.pingers {
			if err := p.Ping(ctx); err != nil {
				resp.Providers[p.Name()] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Providers[p.Name()] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createSubmissionRequest struct {
	ExamID    string                  `json:"exam_id" validate:"required"`
	StudentID string                  `json:"student_id" validate:"required"`
	Subject   string                  `json:"subject"`
	Questions []model.QuestionSpec    `json:"questions" validate:"required,min=1,dive"`
	Answers   []model.CandidateAnswer `json:"answers" validate:"dive"`
}

type submissionResponse struct {
	Submission model.Submission                                   `json:"submission"`
	Outcomes   []model.BatchItemOutcome[model.QuestionEvaluation] `json:"outcomes,omitempty"`
	Failed     int                                                `json:"failed"`
}

func (h *Handler) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req createSubmissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	for i := range req.Questions {
		if req.Questions[i].Subject == "" {
			req.Questions[i].Subject = req.Subject
		}
	}

	result, batch, err := h.engine.EvaluateSubmission(r.Context(), req.Questions, req.Answers)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}

	sub, err := h.store.CreateSubmission(r.Context(), model.Submission{
		ExamID:     req.ExamID,
		StudentID:  req.StudentID,
		OwnerID:    user.ID,
		Subject:    req.Subject,
		Questions:  req.Questions,
		Answers:    req.Answers,
		Evaluation: &result,
	})
	if err != nil {
		h.sendErr(w, r, err)
		return
	}

	h.logger.Info("submission stored",
		"submission_id", sub.ID,
		"owner_id", user.ID,
		"grade", result.Grade,
		"failed", batch.Failed,
	)
	h.sendSuccess(w, r, http.StatusCreated, submissionResponse{
		Submission: sub,
		Outcomes:   batch.Outcomes,
		Failed:     batch.Failed,
	})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubmissions(r.Context(), ownerScope(model.UserFromContext(r.Context())))
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	h.sendSuccess(w, r, http.StatusOK, subs)
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sub, ok := h.loadSubmission(w, r)
	if !ok {
		return
	}
	if !h.canView(*user, sub) {
		sendError(w, http.StatusForbidden, h.msg(r, "NotAuthorized"))
		return
	}
	h.sendSuccess(w, r, http.StatusOK, sub)
}

type reviewRequest struct {
	Overrides []grading.Override `json:"overrides" validate:"required,min=1,dive"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sub, ok := h.loadSubmission(w, r)
	if !ok {
		return
	}
	if !h.policy.CanModify(*user, sub) {
		sendError(w, http.StatusForbidden, h.msg(r, "NotAuthorized"))
		return
	}
	if sub.Evaluation == nil {
		sendError(w, http.StatusConflict, h.msg(r, "NotEvaluated"))
		return
	}

	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.ApplyOverrides(*sub.Evaluation, req.Overrides)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}

	now := time.Now().UTC()
	reviewer := user.ID
	sub.Evaluation = &result
	sub.ReviewedBy = &reviewer
	sub.ReviewedAt = &now
	sub.UpdatedAt = now
	if err := h.store.Save(r.Context(), sub); err != nil {
		h.sendErr(w, r, err)
		return
	}

	h.logger.Info("submission reviewed", "submission_id", sub.ID, "reviewer_id", reviewer, "grade", result.Grade)
	h.sendSuccess(w, r, http.StatusOK, sub)
}

type reevaluateRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleReevaluate(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req reevaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcomes, err := h.reeval.ReevaluateMany(r.Context(), *user, req.IDs)
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	h.sendSuccess(w, r, http.StatusOK, outcomes)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	evals, err := h.store.Evaluations(r.Context(), ownerScope(model.UserFromContext(r.Context())))
	if err != nil {
		h.sendErr(w, r, err)
		return
	}
	h.sendSuccess(w, r, http.StatusOK, h.engine.Stats(evals))
}

func (h *Handler) loadSubmission(w http.ResponseWriter, r *http.Request) (model.Submission, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		sendError(w, http.StatusBadRequest, h.msg(r, "InvalidSubmissionID"))
		return model.Submission{}, false
	}
	sub, found, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.sendErr(w, r, err)
		return model.Submission{}, false
	}
	if !found {
		sendError(w, http.StatusNotFound, h.msg(r, "SubmissionNotFound"))
		return model.Submission{}, false
	}
	return sub, true
}

// canView lets students read their own submissions in addition to everyone
// allowed to modify them.
func (h *Handler) canView(user model.User, sub model.Submission) bool {
	if h.policy.CanModify(user, sub) {
		return true
	}
	return user.Active && user.Role == model.UserRoleStudent && sub.StudentID == user.Username
}

// ownerScope limits listings to the teacher's own submissions; admins see all.
func ownerScope(u *model.User) int64 {
	if u.Role == model.UserRoleAdmin {
		return 0
	}
	return u.ID
}
