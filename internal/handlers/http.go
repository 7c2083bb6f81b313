package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/edu-mentor-go/internal/i18n"
	"github.com/edu-mentor-go/internal/middleware"
	"github.com/edu-mentor-go/internal/models"
	"github.com/edu-mentor-go/internal/pipeline"
	"github.com/edu-mentor-go/internal/services/budget"
	"github.com/edu-mentor-go/internal/services/moderation"
	"github.com/edu-mentor-go/internal/services/persona"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// canaryPhrase must always clear the moderation gate; if it stops doing
// so the safety stack itself is broken and /health/safety goes red.
const canaryPhrase = "Exploring the geography of France is a fun way to learn about countries and their capital cities!"

// Handler exposes the interaction pipeline over HTTP.
type Handler struct {
	pipeline  *pipeline.Pipeline
	registry  *persona.Registry
	gate      *moderation.CachedGate
	guard     *budget.Guard
	limiter   middleware.RateLimiter
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

func NewHandler(
	pl *pipeline.Pipeline,
	registry *persona.Registry,
	gate *moderation.CachedGate,
	guard *budget.Guard,
	limiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		pipeline:  pl,
		registry:  registry,
		gate:      gate,
		guard:     guard,
		limiter:   limiter,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Router builds the API surface. The metrics endpoint is served by the
// separate monitoring listener, not here.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/interactions", h.HandleInteraction).Methods(http.MethodPost)
	r.HandleFunc("/api/moderation", h.HandleModeration).Methods(http.MethodPost)
	r.HandleFunc("/api/costs/{userId}", h.HandleCosts).Methods(http.MethodGet)
	r.HandleFunc("/api/personas", h.HandlePersonas).Methods(http.MethodGet)
	r.HandleFunc("/api/personas/{id}", h.HandlePersona).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/safety", h.HandleSafetyHealth).Methods(http.MethodGet)
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Response encode failed")
	}
}

// HandleInteraction is the main entry point. Validation failures are the
// only 400s; once the request is well formed the pipeline guarantees a
// usable reply, so everything downstream is a 200.
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	var req models.InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.PersonaID = strings.TrimSpace(req.PersonaID)
	if req.UserID == "" || req.PersonaID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "userId and personaId are required"})
		return
	}

	per, err := h.registry.Get(req.PersonaID)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if !h.limiter.Allow(req.UserID) {
		h.metrics.RecordRateLimitExceeded()
		h.writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error: h.localizer.Default(i18n.MsgRateLimited, nil),
		})
		return
	}

	result := h.pipeline.Process(r.Context(), per, &req)
	h.writeJSON(w, http.StatusOK, result)
}

type moderationRequest struct {
	Text      string `json:"text"`
	PersonaID string `json:"personaId"`
}

// HandleModeration pre-checks arbitrary text without generating or
// billing anything. Verdicts are cached, so game UIs can poll it freely.
func (h *Handler) HandleModeration(w http.ResponseWriter, r *http.Request) {
	var req moderationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}

	var per *models.Persona
	if req.PersonaID != "" {
		p, err := h.registry.Get(req.PersonaID)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		per = p
	}

	verdict := h.gate.Validate(r.Context(), req.Text, per)
	h.writeJSON(w, http.StatusOK, verdict)
}

func (h *Handler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	summary, err := h.guard.Summary(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Cost summary failed")
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "cost summary unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// personaView is the UI-facing projection of a persona. Prompt templates
// and keyword sets stay server-side.
type personaView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Tone             string   `json:"tone"`
	EducationalFocus string   `json:"educationalFocus"`
	IconEmoji        string   `json:"iconEmoji"`
	SafeTopics       []string `json:"safeTopics"`
	ExampleReplies   []string `json:"exampleReplies"`
}

func viewOf(p *models.Persona) personaView {
	return personaView{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		Tone:             p.Tone,
		EducationalFocus: p.EducationalFocus,
		IconEmoji:        p.IconEmoji,
		SafeTopics:       p.SafeTopics,
		ExampleReplies:   p.FallbackReplies,
	}
}

func (h *Handler) HandlePersonas(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()
	views := make([]personaView, 0, len(all))
	for _, p := range all {
		views = append(views, viewOf(p))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandlePersona(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(p))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSafetyHealth runs the canary phrase through the live moderation
// gate. A rejected canary means validator or config drift and reports 503.
func (h *Handler) HandleSafetyHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	verdict := h.gate.Validate(ctx, canaryPhrase, nil)
	if !verdict.Approved {
		h.logger.WithField("concerns", strings.Join(verdict.Concerns, "; ")).
			Error("Safety canary rejected")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unhealthy",
			"concerns": verdict.Concerns,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"confidence": verdict.Confidence,
	})
}
