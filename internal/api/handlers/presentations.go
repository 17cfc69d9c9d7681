package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/slidecast/internal/presentation"
)

// Client-facing messages. Details stay in the server log.
const (
	msgInvalidFile    = "Invalid file type. Please upload a .pptx file."
	msgMissingFile    = "A .pptx file must be uploaded in the 'file' field."
	msgTooLarge       = "The uploaded file is too large."
	msgExtractFailed  = "Failed to extract any content from the presentation."
	msgScriptFailed   = "Failed to generate scripts from the language model."
	msgInternal       = "An internal server error occurred."
	msgNotFound       = "Presentation not found."
	msgAudioNotFound  = "Audio file not found."
	msgInvalidBody    = "invalid request body"
	msgContextMissing = "context is required"
	msgBodyTooLarge   = "request body is too large"
)

// maxAskBody bounds the question plus the caller-supplied scripts.
const maxAskBody = 1 << 20

// PresentationService is implemented by *presentation.Service.
type PresentationService interface {
	Create(ctx context.Context, filename string, data []byte) (*presentation.CreateResult, error)
	Video(ctx context.Context, id string) (*presentation.Delivery, error)
	AudioPath(id, filename string) (string, error)
	Ask(ctx context.Context, req presentation.AskRequest) (*presentation.AskResponse, error)
}

type PresentationHandler struct {
	svc       PresentationService
	maxUpload int64
	logger    *slog.Logger
}

func NewPresentationHandler(svc PresentationService, maxUploadBytes int64, logger *slog.Logger) *PresentationHandler {
	return &PresentationHandler{svc: svc, maxUpload: maxUploadBytes, logger: logger}
}

// Create accepts a multipart upload in the "file" field and runs the pipeline.
func (h *PresentationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgMissingFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Warn("read upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, msgMissingFile)
		return
	}

	res, err := h.svc.Create(r.Context(), header.Filename, data)
	if err != nil {
		h.createFailed(w, header.Filename, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PresentationHandler) createFailed(w http.ResponseWriter, filename string, err error) {
	if errors.Is(err, presentation.ErrInvalidFile) {
		writeError(w, http.StatusBadRequest, msgInvalidFile)
		return
	}

	h.logger.Error("create presentation", "filename", filename, "error", err)
	var se *presentation.StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case presentation.StageExtract:
			writeError(w, http.StatusInternalServerError, msgExtractFailed)
			return
		case presentation.StageScript:
			writeError(w, http.StatusInternalServerError, msgScriptFailed)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// Audio serves one narration file.
func (h *PresentationHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := h.svc.AudioPath(id, chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, msgAudioNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

// Video composes and streams the presentation video, then tears the
// presentation down.
func (h *PresentationHandler) Video(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.svc.Video(r.Context(), id)
	if errors.Is(err, presentation.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		h.logger.Error("compose video", "presentation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	defer func() {
		if err := d.Release(); err != nil {
			h.logger.Error("release presentation", "presentation_id", id, "error", err)
		}
	}()

	f, err := os.Open(d.Path)
	if err != nil {
		h.logger.Error("open video", "presentation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.Error("stat video", "presentation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("stream video", "presentation_id", id, "error", err)
	}
}

// Ask answers a viewer question against the supplied scripts.
func (h *PresentationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxAskBody {
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAskBody)

	var req presentation.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	resp, err := h.svc.Ask(r.Context(), req)
	if errors.Is(err, presentation.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, msgContextMissing)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
