package serve

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

// maxChatBody bounds request bodies; attachments travel inline as base64.
const maxChatBody = 32 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req llm.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := s.log.With().
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("model", req.Model).
		Int("contents", len(req.Contents)).
		Logger()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	frames := 0
	for f := range s.gateway.Stream(r.Context(), req) {
		if _, err := w.Write(frame.Encode(f)); err != nil {
			log.Debug().Err(err).Int("frames", frames).Msg("client write failed")
			return
		}
		if err := rc.Flush(); err != nil {
			log.Debug().Err(err).Msg("flush failed")
			return
		}
		frames++
	}
	log.Debug().Int("frames", frames).Msg("chat stream finished")
}
