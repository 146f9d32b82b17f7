package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// SagaHandlers contains saga HTTP handlers
type SagaHandlers struct {
	startSaga     *application.StartSaga
	getSagaStatus *application.GetSagaStatus
}

// NewSagaHandlers creates new saga handlers
func NewSagaHandlers(
	startSaga *application.StartSaga,
	getSagaStatus *application.GetSagaStatus,
) *SagaHandlers {
	return &SagaHandlers{
		startSaga:     startSaga,
		getSagaStatus: getSagaStatus,
	}
}

// StartSaga handles saga creation requests
func (h *SagaHandlers) StartSaga(w http.ResponseWriter, r *http.Request) {
	var cmd application.StartSagaCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.startSaga.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

// GetSaga handles saga status requests
func (h *SagaHandlers) GetSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		http.Error(w, "Saga ID is required", http.StatusBadRequest)
		return
	}

	response, err := h.getSagaStatus.Execute(r.Context(), &application.GetSagaStatusQuery{SagaID: sagaID})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Health reports that the process is serving
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterRoutes registers saga routes
func (h *SagaHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/sagas", func(r chi.Router) {
		r.Post("/", h.StartSaga)
		r.Get("/{id}", h.GetSaga)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSagaNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSagaType), errors.Is(err, application.ErrInvalidCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
