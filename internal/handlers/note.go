package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/storage"
)

// NoteHandler handles HTTP requests for the note collection the indexer
// works against. Deliberately thin: notes are the input to indexing, not
// the subject of this service.
type NoteHandler struct {
	notes storage.NoteStore
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(notes storage.NoteStore) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// NoteRequest represents the HTTP request payload for creating or updating
// a note.
//
// swagger:model NoteRequest
type NoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// NoteResponse represents a stored note.
//
// swagger:model NoteResponse
type NoteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func noteResponse(note *storage.Note) NoteResponse {
	return NoteResponse{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      note.Tags,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

// List handles GET /api/notes.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	notes, err := h.notes.GetByUserID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := make([]NoteResponse, len(notes))
	for i, note := range notes {
		resp[i] = noteResponse(note)
	}
	writeJSON(w, r, http.StatusOK, map[string][]NoteResponse{"notes": resp})
}

// Get handles GET /api/notes/{noteID}.
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	note, ok := h.loadOwned(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, noteResponse(note))
}

// Create handles POST /api/notes.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" && req.Content == "" {
		writeError(w, r, http.StatusBadRequest, "a title or content is required")
		return
	}

	note := &storage.Note{
		ID:      uuid.New().String(),
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	}
	if err := h.notes.Upsert(ctx, note); err != nil {
		writeServiceError(w, r, err)
		return
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "note created",
		"note_id", note.ID, "user_id", userID)
	writeJSON(w, r, http.StatusCreated, noteResponse(note))
}

// Update handles PUT /api/notes/{noteID}.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	note, ok := h.loadOwned(w, r, userID)
	if !ok {
		return
	}

	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	note.Title = req.Title
	note.Content = req.Content
	note.Tags = req.Tags
	if err := h.notes.Upsert(r.Context(), note); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, noteResponse(note))
}

// Delete handles DELETE /api/notes/{noteID}. The note's chunks stay in the
// vector store until the next indexing job diffs them away.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	note, ok := h.loadOwned(w, r, userID)
	if !ok {
		return
	}

	if err := h.notes.Delete(r.Context(), note.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadOwned fetches the note from the URL and enforces ownership. Foreign
// notes read as not found so ids don't leak across users.
func (h *NoteHandler) loadOwned(w http.ResponseWriter, r *http.Request, userID string) (*storage.Note, bool) {
	noteID := chi.URLParam(r, "noteID")
	note, err := h.notes.GetByID(r.Context(), noteID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "note not found")
		return nil, false
	}
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if note.UserID != userID {
		writeError(w, r, http.StatusNotFound, "note not found")
		return nil, false
	}
	return note, true
}
