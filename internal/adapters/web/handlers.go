package web

import (
	"errors"
	"net/http"
	"strconv"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Handler exposes the validation workflow as a JSON API.
type Handler struct {
	svc app.ApplicationService
	log *logrus.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *logrus.Logger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)
	r.Get("/api/drafts", h.listDrafts)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.startSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/resume", h.resumeSession)
			r.Post("/analyze", h.analyze)
			r.Post("/proceed", h.proceed)
			r.Post("/corrections/apply", h.applyCorrections)
			r.Post("/step", h.goToStep)
			r.Delete("/", h.cancel)

			r.Route("/missing/{item}", func(r chi.Router) {
				r.Post("/search", h.searchMissing)
				r.Post("/select", h.selectProduct)
				r.Post("/external", h.markExternal)
				r.Post("/add", h.addMissing)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) listDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.svc.ListDrafts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"drafts": drafts})
}

type startSessionRequest struct {
	DraftID int `json:"draft_id" validate:"required,gt=0"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	state, err := h.svc.StartSession(r.Context(), req.DraftID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.ResumeSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Analyze(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) proceed(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Proceed(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) applyCorrections(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.ApplyCorrections(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

type goToStepRequest struct {
	Step string `json:"step" validate:"required"`
}

func (h *Handler) goToStep(w http.ResponseWriter, r *http.Request) {
	var req goToStepRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	state, err := h.svc.GoToStep(r.Context(), chi.URLParam(r, "sessionID"), req.Step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) searchMissing(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	state, err := h.svc.SearchMissingProduct(r.Context(), chi.URLParam(r, "sessionID"), item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

type selectProductRequest struct {
	ProductID int `json:"product_id" validate:"required,gt=0"`
}

func (h *Handler) selectProduct(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	var req selectProductRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	state, err := h.svc.SelectProduct(r.Context(), chi.URLParam(r, "sessionID"), item, req.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) markExternal(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	state, err := h.svc.MarkAwaitingProductCreation(r.Context(), chi.URLParam(r, "sessionID"), item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) addMissing(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemIndex(w, r)
	if !ok {
		return
	}
	state, err := h.svc.AddMissingProduct(r.Context(), chi.URLParam(r, "sessionID"), item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *Handler) itemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	item, err := strconv.Atoi(chi.URLParam(r, "item"))
	if err != nil {
		writeError(w, r, "invalid item index", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return item, true
}

// fail maps service errors to HTTP codes: unknown resources are 404,
// rejected transitions and navigation are 409, the rest 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrForwardJump),
		errors.Is(err, core.ErrTooManyPasses),
		errors.Is(err, core.ErrManualOutstanding),
		errors.Is(err, ledger.ErrImmutable):
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
	default:
		h.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Errorf("request failed: %v", err)
		writeError(w, r, err.Error(), "INTERNAL", http.StatusInternalServerError)
	}
}
