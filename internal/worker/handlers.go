package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// defaultAnomalyLimit caps the anomaly listing when no limit is given.
const defaultAnomalyLimit = 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	log.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handlePriorities returns the user's incomplete tasks ordered by
// learned priority, highest first.
func (s *Service) handlePriorities(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	scores, err := s.learning.PrioritizeTasks(r.Context(), userID, time.Now())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"priorities": scores,
	})
}

type completeRequest struct {
	// CompletedAt defaults to now when omitted.
	CompletedAt *time.Time `json:"completed_at"`
}

func (s *Service) handleComplete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.TaskByID(r.Context(), taskID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req completeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	completedAt := time.Now().UTC()
	if req.CompletedAt != nil {
		completedAt = req.CompletedAt.UTC()
	}

	if err := s.learning.RecordCompletion(r.Context(), task, completedAt); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.MarkTaskCompleted(r.Context(), taskID, true); err != nil {
		writeStoreError(w, err)
		return
	}

	s.insights.InvalidateInsights(r.Context(), task.UserID)
	s.enqueueRecompute(task.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Service) handleFail(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.TaskByID(r.Context(), taskID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if err := s.learning.RecordFailure(r.Context(), task); err != nil {
		writeStoreError(w, err)
		return
	}

	s.insights.InvalidateInsights(r.Context(), task.UserID)
	s.enqueueRecompute(task.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Service) handleInsights(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if report, err := s.insights.GetInsights(r.Context(), userID); err == nil {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.learning.Insights(r.Context(), userID, time.Now().UTC())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.insights.SetInsights(r.Context(), report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := defaultAnomalyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	anomalies, err := s.store.RecentAnomalies(r.Context(), userID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"anomalies": anomalies,
	})
}

type createExperimentRequest struct {
	Name         string             `json:"name"`
	Parameters   map[string]float64 `json:"parameters"`
	DurationDays int                `json:"duration_days"`
}

func (s *Service) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	exp, err := s.experiments.CreateExperiment(r.Context(), req.Name, req.Parameters, req.DurationDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Service) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.experiments.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exps)
}

// handleActiveExperiment returns the experiment currently in effect, or
// 404 when none is running.
func (s *Service) handleActiveExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.experiments.ActiveExperiment(r.Context(), time.Now().UTC())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Service) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.experiments.Get(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Service) handleAnalyzeExperiment(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.experiments.Analyze(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Service) handleDeactivateExperiment(w http.ResponseWriter, r *http.Request) {
	if err := s.experiments.Deactivate(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Service) handleUpsertTask(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if task.ID == "" || task.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required")
		return
	}
	if err := s.store.UpsertTask(r.Context(), &task); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &task)
}

func (s *Service) handleUpsertHabit(w http.ResponseWriter, r *http.Request) {
	var habit models.Habit
	if err := json.NewDecoder(r.Body).Decode(&habit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if habit.ID == "" || habit.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required")
		return
	}
	if err := s.store.UpsertHabit(r.Context(), &habit); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &habit)
}
