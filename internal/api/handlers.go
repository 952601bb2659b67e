// Package api provides HTTP handlers for MoodPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/emotion"
	"github.com/BTreeMap/MoodPipe/internal/engine"
	"github.com/BTreeMap/MoodPipe/internal/metrics"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/util"
)

// healthProbeKey is the settings key read to verify store connectivity.
// The key is never written; a clean miss proves the roundtrip works.
const healthProbeKey = "health_probe"

// wellnessMoodWindow caps how many recent mood entries ride along with a
// per-user wellness response.
const wellnessMoodWindow = 7

func (s *Server) screenshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.screenshotHandler: processing screenshot request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.screenshotHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ScreenshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.screenshotHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.screenshotHandler: validation failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	image, mimeType, err := req.DecodeImage()
	if err != nil {
		slog.Warn("Server.screenshotHandler: image decoding failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.engine.AnalyzeScreenshot(r.Context(), engine.ScreenshotInput{
		UserID:   req.UserID,
		Image:    image,
		MimeType: mimeType,
		AppType:  req.AppType,
	})
	if err != nil {
		slog.Error("Server.screenshotHandler: analysis failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Screenshot analysis failed"))
		return
	}

	slog.Info("Server.screenshotHandler: analysis completed",
		"user_id", req.UserID, "invocation_id", result.InvocationID,
		"score", result.Mood.Score, "prediction", result.Mood.Prediction)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messageHandler: processing message request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messageHandler: validation failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	state := emotion.Classify(req.Body, s.history.Window(req.UserID))
	s.history.Record(req.UserID, req.Body, state.PrimaryEmotion)
	metrics.RecordClassification(state.PrimaryEmotion, string(state.Urgency))

	if err := s.st.UpsertUser(models.User{ID: req.UserID}); err != nil {
		slog.Error("Server.messageHandler: failed to upsert user", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store message"))
		return
	}
	conversationID := "conv-" + req.UserID
	if err := s.st.CreateConversation(models.Conversation{ID: conversationID, UserID: req.UserID}); err != nil {
		slog.Error("Server.messageHandler: failed to create conversation", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store message"))
		return
	}
	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conversationID,
		UserID:         req.UserID,
		Body:           req.Body,
		Emotion:        state,
	}
	if err := s.st.AddMessage(msg); err != nil {
		slog.Error("Server.messageHandler: failed to store message", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store message"))
		return
	}

	slog.Info("Server.messageHandler: message classified",
		"user_id", req.UserID, "emotion", state.PrimaryEmotion, "urgency", state.Urgency)
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// workflowsHandler returns the registered workflow definitions (GET /api/v1/workflows).
func (s *Server) workflowsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.workflowsHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.workflowsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Workflows()))
}

// statusHandler reports engine, store, and provider status (GET /api/v1/status).
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statusHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statusHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	storeStatus := "ok"
	if _, err := s.st.GetSetting(healthProbeKey); err != nil && !errors.Is(err, models.ErrNotFound) {
		slog.Warn("Server.statusHandler: store probe failed", "error", err)
		storeStatus = "unavailable"
	}

	status := map[string]interface{}{
		"engine": s.engine.Status(),
		"store":  storeStatus,
		"providers": map[string]interface{}{
			"registered":   s.registry.Names(),
			"connected":    s.registry.Connected(),
			"connected_at": s.agg.Status(),
		},
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// resultsHandler returns the most recent analysis results (GET /api/v1/results?limit=N).
func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.resultsHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.resultsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			slog.Warn("Server.resultsHandler: invalid limit", "limit", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}
	results := s.engine.RecentResults(limit)
	slog.Debug("Server.resultsHandler: results fetched", "count", len(results))
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}

// insightsHandler returns the latest aggregation insights (GET /api/v1/insights).
func (s *Server) insightsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.insightsHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.insightsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.LatestInsights()))
}

// wellnessHandler returns aggregator-derived wellness scores, plus recent
// mood entries when a user is named (GET /api/v1/wellness?user_id=).
func (s *Server) wellnessHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.wellnessHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.wellnessHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]interface{}{
		"scores":  s.agg.Wellness(),
		"current": s.agg.Current(),
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		entries, err := s.st.RecentMoodEntries(userID, wellnessMoodWindow)
		if err != nil {
			slog.Warn("Server.wellnessHandler: failed to fetch mood entries", "error", err, "user_id", userID)
		} else {
			payload["recent_moods"] = entries
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(payload))
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// A settings read as the liveness indicator; a miss is fine, any other
	// failure means the store is unreachable.
	if _, err := s.st.GetSetting(healthProbeKey); err != nil && !errors.Is(err, models.ErrNotFound) {
		slog.Warn("Health check: store probe failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Store unreachable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
