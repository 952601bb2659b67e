package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/providers"
)

// oauthHandler routes /oauth/{provider}/connect and
// /oauth/{provider}/callback.
func (s *Server) oauthHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.oauthHandler: invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/oauth/")
	segments := strings.Split(path, "/")
	if len(segments) != 2 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown oauth endpoint"))
		return
	}
	provider := segments[0]

	switch segments[1] {
	case "connect":
		s.oauthConnectHandler(w, r, provider)
	case "callback":
		s.oauthCallbackHandler(w, r, provider)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown oauth endpoint"))
	}
}

// oauthConnectHandler starts the authorization-code flow
// (GET /oauth/{provider}/connect?user_id=).
func (s *Server) oauthConnectHandler(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = DefaultUserID
	}

	authURL, err := s.registry.BeginAuth(provider)
	if err != nil {
		if errors.Is(err, models.ErrUnknownProvider) {
			slog.Warn("Server.oauthConnectHandler: unknown provider", "provider", provider)
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
			return
		}
		slog.Error("Server.oauthConnectHandler: failed to begin authorization", "error", err, "provider", provider)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to begin authorization"))
		return
	}

	// The state token rides the redirect; remember who started the flow so
	// the callback can attribute the stored session.
	if u, perr := url.Parse(authURL); perr == nil {
		s.rememberPendingUser(u.Query().Get("state"), userID)
	}

	slog.Info("Server.oauthConnectHandler: authorization started", "provider", provider, "user_id", userID)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// oauthCallbackHandler completes the flow: state check, code exchange,
// initial metrics fetch, session persistence
// (GET /oauth/{provider}/callback?code=&state=).
func (s *Server) oauthCallbackHandler(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	query := r.URL.Query()
	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		slog.Warn("Server.oauthCallbackHandler: missing code or state", "provider", provider)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing code or state parameter"))
		return
	}
	userID := s.takePendingUser(state)
	if userID == "" {
		userID = DefaultUserID
	}

	token, err := s.registry.CompleteAuth(r.Context(), provider, code, state)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownProvider):
			slog.Warn("Server.oauthCallbackHandler: unknown provider", "provider", provider)
			writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
		case errors.Is(err, models.ErrInvalidStateToken):
			slog.Warn("Server.oauthCallbackHandler: state verification failed", "provider", provider)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.oauthCallbackHandler: authorization failed", "error", err, "provider", provider)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Authorization failed"))
		}
		return
	}

	s.agg.Connect(provider)

	// First fetch is best effort; the scheduled sync will catch up if the
	// provider API is briefly unhappy.
	synced := false
	if rec, syncErr := s.registry.Sync(r.Context(), provider); syncErr != nil {
		slog.Warn("Server.oauthCallbackHandler: initial fetch failed", "error", syncErr, "provider", provider)
	} else {
		s.agg.SetRecord(provider, rec)
		synced = true
	}

	session := models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if err := s.st.UpsertUser(models.User{ID: userID}); err != nil {
		slog.Error("Server.oauthCallbackHandler: failed to upsert user", "error", err, "user_id", userID)
	} else if err := s.st.SaveSession(session); err != nil {
		slog.Error("Server.oauthCallbackHandler: failed to save session", "error", err, "provider", provider, "user_id", userID)
	}

	slog.Info("Server.oauthCallbackHandler: provider connected",
		"provider", provider, "user_id", userID, "synced", synced)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider connected", map[string]interface{}{
		"provider": provider,
		"user_id":  userID,
		"synced":   synced,
	}))
}

// rememberPendingUser records which user began the flow carrying this state
// token. Entries older than the registry's state TTL are pruned on the way
// in so abandoned flows cannot accumulate.
func (s *Server) rememberPendingUser(state, userID string) {
	if state == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-providers.DefaultStateTTL)
	for st, p := range s.pending {
		if p.issuedAt.Before(cutoff) {
			delete(s.pending, st)
		}
	}
	s.pending[state] = pendingAuth{userID: userID, issuedAt: time.Now()}
}

// takePendingUser consumes the user recorded for a state token, if any.
func (s *Server) takePendingUser(state string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[state]
	if !ok {
		return ""
	}
	delete(s.pending, state)
	return p.userID
}
