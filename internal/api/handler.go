package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eugenenazirov/webhost/internal/attachments"
	"github.com/eugenenazirov/webhost/internal/errorreport"
	"github.com/eugenenazirov/webhost/internal/settings"
	"github.com/eugenenazirov/webhost/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const filteredValue = "[FILTERED]"

// Handler wires settings and the attachment service into HTTP handlers.
type Handler struct {
	settings    settings.Settings
	attachments *attachments.Service
	reporter    errorreport.Reporter

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithAttachments enables the attachment endpoints.
func WithAttachments(svc *attachments.Service) HandlerOption {
	return func(h *Handler) {
		h.attachments = svc
	}
}

// WithReporter sends unexpected handler errors to reporter.
func WithReporter(reporter errorreport.Reporter) HandlerOption {
	return func(h *Handler) {
		h.reporter = reporter
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(s settings.Settings, opts ...HandlerOption) *Handler {
	h := &Handler{
		settings: s,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	flat := h.settings.Flatten()
	if keyfile, ok := flat[settings.KeyGoogleCloudKeyfile].(string); ok && keyfile != "" {
		flat[settings.KeyGoogleCloudKeyfile] = filteredValue
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: flat})
}

func (h *Handler) handleCreateAttachment(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "filename query parameter is required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, storage.MaxBlobSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}
	if len(data) > storage.MaxBlobSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Attachment too large", "attachments are limited to "+strconv.Itoa(storage.MaxBlobSize)+" bytes")
		return
	}

	a, err := h.attachments.Attach(filename, r.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidBlob) {
			writeError(w, http.StatusBadRequest, "Invalid attachment", err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/attachments/"+a.Key)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	list, err := h.attachments.List()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attachmentsResponse{Attachments: list})
}

func (h *Handler) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := h.attachments.Find(r.PathValue("key"))
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	a, data, err := h.attachments.Download(r.PathValue("key"))
	if err != nil {
		h.storageError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(a.ByteSize, 10))
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(a.Filename))
	w.Header().Set("Content-MD5", a.Checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.attachments.Purge(r.PathValue("key")); err != nil {
		h.storageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type settingsResponse struct {
	Settings map[string]any `json:"settings"`
}

type attachmentsResponse struct {
	Attachments []attachments.Attachment `json:"attachments"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func (h *Handler) storageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", err.Error(), "List attachments with GET /api/attachments")
		return
	}
	h.internalError(w, r, err)
}

// internalError reports err and answers with a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	if h.reporter != nil {
		h.reporter.Report(r, err)
	}
	writeInternalError(w, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
