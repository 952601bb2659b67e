package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/MoodPipe/internal/assessment"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/util"
)

// assessmentsHandler returns the screening instrument templates
// (GET /api/v1/assessments).
func (s *Server) assessmentsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.assessmentsHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.assessmentsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(assessment.Templates()))
}

// scoreAssessmentHandler scores a completed instrument, or a comprehensive
// set of instruments when the request carries sections
// (POST /api/v1/assessments/score).
func (s *Server) scoreAssessmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.scoreAssessmentHandler: processing score request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.scoreAssessmentHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.AssessmentScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.scoreAssessmentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.scoreAssessmentHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if len(req.Sections) > 0 {
		s.scoreComprehensive(w, req)
		return
	}

	instrument, err := assessment.ParseInstrument(req.Instrument)
	if err != nil {
		slog.Warn("Server.scoreAssessmentHandler: unknown instrument", "instrument", req.Instrument)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	result, err := assessment.Score(instrument, req.Responses)
	if err != nil {
		slog.Warn("Server.scoreAssessmentHandler: scoring failed", "error", err, "instrument", instrument)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	s.persistAssessmentResult(req.UserID, fmt.Sprintf("Assessment result: %s", instrument), result)
	slog.Info("Server.scoreAssessmentHandler: instrument scored",
		"instrument", instrument, "total", result.TotalScore, "category", result.Category)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// scoreComprehensive scores every named section and returns the weighted
// overall result.
func (s *Server) scoreComprehensive(w http.ResponseWriter, req models.AssessmentScoreRequest) {
	sections := make(map[assessment.Instrument][]int, len(req.Sections))
	for name, responses := range req.Sections {
		instrument, err := assessment.ParseInstrument(name)
		if err != nil {
			slog.Warn("Server.scoreComprehensive: unknown instrument", "instrument", name)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		sections[instrument] = responses
	}

	result, err := assessment.ScoreComprehensive(sections)
	if err != nil {
		slog.Warn("Server.scoreComprehensive: scoring failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	s.persistAssessmentResult(req.UserID, "Assessment result: comprehensive", result)
	slog.Info("Server.scoreComprehensive: assessment scored",
		"assessment_id", result.AssessmentID, "overall", result.OverallScore, "category", result.OverallCategory)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// persistAssessmentResult stores a scored result as a document on the user's
// record. Best effort: assessment scoring never fails on a storage error.
func (s *Server) persistAssessmentResult(userID, title string, result any) {
	if userID == "" {
		return
	}
	content, err := json.Marshal(result)
	if err != nil {
		slog.Error("Server.persistAssessmentResult: failed to encode result", "error", err, "user_id", userID)
		return
	}
	if err := s.st.UpsertUser(models.User{ID: userID}); err != nil {
		slog.Error("Server.persistAssessmentResult: failed to upsert user", "error", err, "user_id", userID)
		return
	}
	doc := models.Document{
		ID:       util.GenerateDocumentID(),
		UserID:   userID,
		Title:    title,
		Content:  string(content),
		MimeType: "application/json",
	}
	if err := s.st.SaveDocument(doc); err != nil {
		slog.Error("Server.persistAssessmentResult: failed to save document", "error", err, "user_id", userID)
		return
	}
	slog.Debug("Server.persistAssessmentResult: result stored", "user_id", userID, "document_id", doc.ID)
}
