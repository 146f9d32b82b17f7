package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	c := newCheckout(t, "")
	r := chi.NewRouter()
	NewSagaHandlers(c.start, c.status).RegisterRoutes(r)
	r.Get("/health", Health)
	return r
}

func TestSagaHandlers(t *testing.T) {
	router := newTestRouter(t)

	var created application.StartSagaResponse

	t.Run("start saga", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sagas/", strings.NewReader(
			`{"saga_type":"OrderCheckout","payload":{"orderId":"ord-1"}}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.NotEmpty(t, created.SagaID)
		assert.Equal(t, "IN_PROGRESS", created.State)
	})

	t.Run("get saga", func(t *testing.T) {
		require.NotEmpty(t, created.SagaID)

		req := httptest.NewRequest(http.MethodGet, "/sagas/"+created.SagaID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var status application.SagaStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, created.SagaID, status.SagaID)
		assert.Equal(t, "OrderCheckout", status.SagaType)
		require.NotEmpty(t, status.Steps)
		assert.Equal(t, "ReserveInventory", status.Steps[0].Name)
	})

	tests := []struct {
		name         string
		method       string
		path         string
		body         string
		expectedCode int
	}{
		{"malformed body", http.MethodPost, "/sagas/", `{`, http.StatusBadRequest},
		{"missing saga type", http.MethodPost, "/sagas/", `{"payload":{}}`, http.StatusBadRequest},
		{"missing payload", http.MethodPost, "/sagas/", `{"saga_type":"OrderCheckout"}`, http.StatusBadRequest},
		{"unknown saga type", http.MethodPost, "/sagas/", `{"saga_type":"Nope","payload":{}}`, http.StatusBadRequest},
		{"invalid saga id", http.MethodGet, "/sagas/not-a-uuid", "", http.StatusBadRequest},
		{"unknown saga", http.MethodGet, "/sagas/" + models.GenerateUUID().String(), "", http.StatusNotFound},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.expectedCode, rec.Code, rec.Body.String())
		})
	}
}
