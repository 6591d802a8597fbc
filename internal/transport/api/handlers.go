package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/service/feedback"
	"github.com/sandevgo/kaidesk/internal/service/orchestrator"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const maxUploadBytes = 20 << 20

type loginRequest struct {
	Identifier  string `json:"identifier" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=128"`
}

type stepUpRequest struct {
	Secret string `json:"secret" validate:"required,max=128"`
}

type chatRequest struct {
	Message        string `json:"message" validate:"max=4000"`
	ConversationID string `json:"conversation_id" validate:"max=64"`
}

type feedbackRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" validate:"max=4000"`
	Response       string `json:"response" validate:"max=8000"`
	Rating         string `json:"rating" validate:"required,oneof=positive negative"`
	Comment        string `json:"comment" validate:"max=2000"`
}

type deleteFileRequest struct {
	Filename string `json:"filename" validate:"required"`
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, token, err := h.auth.Issue(r.Context(), req.Identifier, req.DisplayName)
	if err != nil {
		if errors.Is(err, core.ErrAuth) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("login failed")
		respondError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user": map[string]string{
			"name":       session.Name,
			"identifier": session.SubjectID,
			"role":       session.Role,
		},
	})
}

func (h *handlers) handleVerifyStepUp(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	var req stepUpRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.auth.GrantStepUp(r.Context(), session.SubjectID, req.Secret); err != nil {
		if errors.Is(err, core.ErrAuth) {
			respondError(w, http.StatusUnauthorized, "Invalid secret")
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("step-up verification failed")
		respondError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification successful. Sensitive information is unlocked for a limited time.",
	})
}

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chat.Handle(r.Context(), orchestrator.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Session:        sessionFrom(r.Context()),
	})
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("chat failed")
		respondError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.feedback.Submit(r.Context(), core.Feedback{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Response:       req.Response,
		Rating:         core.Rating(req.Rating),
		Comment:        req.Comment,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("feedback failed")
		respondError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleLogout is a no-op: sessions are stateless tokens dropped by the client.
func (h *handlers) handleLogout(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	n, err := h.library.Add(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, core.ErrIngestion) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Str("file", header.Filename).Msg("ingestion failed")
		respondError(w, http.StatusInternalServerError, "Failed to process file")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Successfully processed %s (%d chunks)", header.Filename, n),
	})
}

func (h *handlers) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.library.List()
	if err != nil {
		log.FromCtx(r.Context()).Error().Err(err).Msg("listing files failed")
		respondError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *handlers) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.library.Delete(r.Context(), req.Filename); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "File not found")
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("deleting file failed")
		respondError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.feedback.Report(r.Context())
	if err != nil {
		log.FromCtx(r.Context()).Error().Err(err).Msg("loading stats failed")
		respondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
