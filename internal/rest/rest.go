// Package rest serves the thin HTTP endpoints spec.md §6.4 lists "out of
// core, for completeness": one-shot TTS synthesis, VLM image analysis, and
// CRUD access to the short-/long-term memory stores. None of these carry
// turn/streaming semantics — each is a plain request/response handler in the
// style of internal/health.Handler, registered onto the same *http.ServeMux
// the gateway's WebSocket upgrade handler is mounted on.
package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aurelia-labs/aurelia/pkg/memory"
	"github.com/aurelia-labs/aurelia/pkg/provider/tts"
	"github.com/aurelia-labs/aurelia/pkg/provider/vlm"
)

const maxImageBytes = 16 << 20 // 16 MiB

// Handler serves the REST endpoints over the process-wide provider and
// memory singletons (spec.md §5: "external service clients are process-wide
// singletons").
type Handler struct {
	TTS   tts.Provider
	VLM   vlm.Provider
	STM   memory.SessionStore
	LTM   memory.GraphRAGQuerier
	Voice tts.VoiceProfile
}

// Register adds every REST route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tts/synthesize", h.synthesize)
	mux.HandleFunc("POST /v1/vlm/analyze", h.analyze)
	mux.HandleFunc("POST /v1/memory/sessions/{session_id}/entries", h.writeEntry)
	mux.HandleFunc("GET /v1/memory/sessions/{session_id}/recent", h.getRecent)
	mux.HandleFunc("GET /v1/memory/entities/{entity_id}", h.getEntity)
	mux.HandleFunc("PUT /v1/memory/entities/{entity_id}", h.upsertEntity)
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	audio, err := tts.Synthesize(r.Context(), h.TTS, req.Text, h.Voice)
	if err != nil {
		slog.Error("rest: synthesize failed", "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with an image file")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	resp, err := h.VLM.Analyze(r.Context(), vlm.AnalyzeRequest{
		Image:    image,
		MimeType: header.Header.Get("Content-Type"),
		Prompt:   r.FormValue("prompt"),
	})
	if err != nil {
		slog.Error("rest: vlm analyze failed", "error", err)
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type writeEntryRequest struct {
	SpeakerID   string `json:"speaker_id"`
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
	RawText     string `json:"raw_text,omitempty"`
	IsNPC       bool   `json:"is_npc"`
	NPCID       string `json:"npc_id,omitempty"`
}

func (h *Handler) writeEntry(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	var req writeEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry := memory.TranscriptEntry{
		SpeakerID:   req.SpeakerID,
		SpeakerName: req.SpeakerName,
		Text:        req.Text,
		RawText:     req.RawText,
		IsNPC:       req.IsNPC,
		NPCID:       req.NPCID,
		Timestamp:   time.Now(),
	}
	if err := h.STM.WriteEntry(r.Context(), sessionID, entry); err != nil {
		slog.Error("rest: write entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to write entry")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) getRecent(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	window := 15 * time.Minute
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		if d, err := time.ParseDuration(raw + "s"); err == nil {
			window = d
		}
	}

	entries, err := h.STM.GetRecent(r.Context(), sessionID, window)
	if err != nil {
		slog.Error("rest: get recent failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entity_id")

	entity, err := h.LTM.GetEntity(r.Context(), entityID)
	if err != nil {
		slog.Error("rest: get entity failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read entity")
		return
	}
	if entity == nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) upsertEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entity_id")

	var entity memory.Entity
	if !decodeJSON(w, r, &entity) {
		return
	}
	entity.ID = entityID

	if err := h.LTM.AddEntity(r.Context(), entity); err != nil {
		slog.Error("rest: upsert entity failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to upsert entity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
