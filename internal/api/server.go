package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/engine"
	"tablero/internal/metrics"
	"tablero/internal/store"
)

// HTTPServer exposes the allocation engine over JSON HTTP.
type HTTPServer struct {
	engine      *engine.Engine
	restaurants engine.RestaurantLister
	logger      *zerolog.Logger
	srv         *http.Server
}

// NewHTTPServer creates the API server on the given port.
func NewHTTPServer(eng *engine.Engine, restaurants engine.RestaurantLister, port int, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{engine: eng, restaurants: restaurants, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/availability", s.handleAvailability)
	mux.HandleFunc("/api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("/api/v1/reservations/cancel", s.handleCancelReservation)
	mux.HandleFunc("/api/v1/sweep", s.handleSweep)
	mux.HandleFunc("/api/v1/audit", s.handleAudit)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("API server started")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// AvailabilityRequest is the request body for POST /api/v1/availability.
type AvailabilityRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Date         string `json:"date"` // Format: YYYY-MM-DD
	Time         string `json:"time"` // Format: 24h HH:MM
	PartySize    int    `json:"party_size"`
	Zone         string `json:"zone,omitempty"`
}

// handleAvailability answers a read-only availability question.
// POST /api/v1/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.CheckAvailability(r.Context(), req.RestaurantID, req.Date, req.Time, req.PartySize, req.Zone)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	// Business negatives (closed, no availability, manual handling) are
	// successful answers, not transport failures.
	writeJSON(w, http.StatusOK, result)
}

// handleCreateReservation allocates a table and books it.
// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req engine.CreateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CancelRequest is the request body for POST /api/v1/reservations/cancel.
type CancelRequest struct {
	RestaurantID  string `json:"restaurant_id"`
	ReservationID string `json:"reservation_id"`
}

// handleCancelReservation transitions a reservation to cancelled.
// POST /api/v1/reservations/cancel
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_reservation")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CancelRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.engine.CancelReservation(r.Context(), req.RestaurantID, req.ReservationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reservation not found")
			return
		}
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "reservation_id": req.ReservationID})
}

// SweepRequest is the request body for POST /api/v1/sweep. An empty
// restaurant_id sweeps every configured restaurant.
type SweepRequest struct {
	RestaurantID string `json:"restaurant_id,omitempty"`
}

// handleSweep triggers a release sweep on demand.
// POST /api/v1/sweep
func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sweep")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SweepRequest
	if r.ContentLength > 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	ids := []string{req.RestaurantID}
	if req.RestaurantID == "" {
		ids = s.restaurants.ListRestaurants()
	}

	reports := make([]engine.SweepReport, 0, len(ids))
	for _, id := range ids {
		report, err := s.engine.RunReleaseSweep(r.Context(), id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		reports = append(reports, report)
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleAudit runs the conflict auditor for one restaurant.
// GET /api/v1/audit?restaurant_id=...
func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_id query parameter is required")
		return
	}

	findings, err := s.engine.Audit(r.Context(), restaurantID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"restaurant_id": restaurantID,
		"findings":      findings,
		"count":         len(findings),
	})
}

// writeEngineError maps engine failures to transport codes. Validation is
// the caller's fault, a dead store is a 503, everything else is a 500.
func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage backend unavailable, try again later")
	case engine.IsRaceLost(err):
		writeError(w, http.StatusConflict, "table was taken concurrently, retry the request")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
