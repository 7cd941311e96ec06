package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"earnings-tracker/internal/analysis"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/logging"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/security"
	"earnings-tracker/internal/service"
)

// displayPlaces is the rounding applied to every decimal in responses.
const displayPlaces = 2

// defaultAmount is the calculator stake when the request omits one.
var defaultAmount = decimal.NewFromInt(1000)

type symbolKey struct{}

// symbolParam validates the {symbol} path segment and stores it normalized.
func symbolParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol, err := service.ValidateSymbol(chi.URLParam(r, "symbol"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), symbolKey{}, symbol)))
	})
}

func symbolFrom(r *http.Request) string {
	symbol, _ := r.Context().Value(symbolKey{}).(string)
	return symbol
}

// handleHealth reports component health; 503 when any component is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.Check(r.Context())

	status := http.StatusOK
	if health.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleStatus returns counts, sync progress and consistency issues.
// ?check_key=true also checks the API key against the provider.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	checkKey, _ := strconv.ParseBool(r.URL.Query().Get("check_key"))

	status, err := s.svc.Status(r.Context(), checkKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.svc.SearchCompanies(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if companies == nil {
		companies = []models.Company{}
	}
	writeJSON(w, http.StatusOK, companies)
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.AlignedEffects(r.Context(), symbolFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	effects := make([]models.AlignedEffect, len(report.Effects))
	for i, e := range report.Effects {
		effects[i] = analysis.RoundEffect(e, displayPlaces)
	}
	report.Effects = effects
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.svc.AggregateStats(r.Context(), symbolFrom(r), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis.Round(stats, displayPlaces))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sortParam := r.URL.Query().Get("sort")
	key, err := analysis.ParseSortKey(sortParam)
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError("sort", sortParam, err.Error()))
		return
	}

	entries, err := s.svc.Leaderboard(r.Context(), rng, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range entries {
		entries[i].Stats = analysis.Round(entries[i].Stats, displayPlaces)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	amount := defaultAmount
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("amount", raw, "must be a number"))
			return
		}
	}

	results, err := s.svc.Calculator(r.Context(), amount, rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range results {
		results[i] = analysis.RoundResult(results[i], displayPlaces)
	}
	writeJSON(w, http.StatusOK, results)
}

// parseRange reads the optional 1-based start and end query parameters.
func parseRange(r *http.Request) (models.Range, error) {
	var rng models.Range
	for _, p := range []struct {
		name string
		dst  *int
	}{{"start", &rng.Start}, {"end", &rng.End}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return rng, apperrors.NewValidationError(p.name, raw, "must be an integer")
		}
		*p.dst = n
	}
	return rng, service.ValidateRange(rng)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err onto a status code and writes it as {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Request failed")
	}
	msg := err.Error()
	if security.ContainsSensitiveData(msg) {
		msg = security.Redact(msg)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDataNotFound), errors.Is(err, apperrors.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
