package serve

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/samsaffron/llm-gateway/internal/metrics"
	"github.com/samsaffron/llm-gateway/internal/session"
)

// maxConversationsBody bounds a full conversation collection upload.
const maxConversationsBody = 64 << 20

type saveConversationsRequest struct {
	UserID        string          `json:"userId"`
	Conversations json.RawMessage `json:"conversations"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.loadConversations(w, r)
	case http.MethodPost:
		s.saveConversations(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) loadConversations(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	data, err := s.store.Load(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("load conversations failed")
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) saveConversations(w http.ResponseWriter, r *http.Request) {
	var req saveConversationsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConversationsBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || len(req.Conversations) == 0 {
		writeError(w, http.StatusBadRequest, "userId and conversations are required")
		return
	}

	err := s.store.Save(r.Context(), userID, req.Conversations)
	switch {
	case errors.Is(err, session.ErrInvalidConversations):
		metrics.ConversationSaves.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		metrics.ConversationSaves.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("user_id", userID).Msg("save conversations failed")
		writeError(w, http.StatusInternalServerError, "failed to save conversations")
	default:
		metrics.ConversationSaves.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"message": "saved"})
	}
}
