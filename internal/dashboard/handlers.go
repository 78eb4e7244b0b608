// File: internal/dashboard/handlers.go
package dashboard

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request payloads; cover letters are the largest field.
const maxBodyBytes = 1 << 20

// Handlers serves the applications API.
type Handlers struct {
	log      *zap.Logger
	store    schemas.Store
	snapshot func() map[string]any
	validate *validator.Validate
}

// NewHandlers creates a new Handlers instance. snapshot supplies the
// non-secret configuration view and may be nil.
func NewHandlers(logger *zap.Logger, store schemas.Store, snapshot func() map[string]any) *Handlers {
	return &Handlers{
		log:      logger.Named("dashboard_handlers"),
		store:    store,
		snapshot: snapshot,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the authenticated routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleIndex)
	r.Get("/api/config", h.HandleConfig)

	r.Route("/api/applications", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/notes", h.HandleNotes)
	})
	// Singular form kept for existing dashboard scripts.
	r.Get("/api/application/{id}", h.HandleGet)
	r.Put("/api/application/{id}/notes", h.HandleNotes)
}

// HandleHealthCheck reports liveness. It is served without authentication.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Applications</title></head>
<body><h1>Applications ({{len .}})</h1>
<table><thead><tr><th>ID</th><th>Title</th><th>Company</th><th>Platform</th><th>Applied</th><th>Status</th></tr></thead>
<tbody>{{range .}}<tr><td>{{.ID}}</td><td>{{if .JobURL}}<a href="{{.JobURL}}">{{.JobTitle}}</a>{{else}}{{.JobTitle}}{{end}}</td><td>{{.Company}}</td><td>{{.Platform}}</td><td>{{.AppliedDate.Format "2006-01-02 15:04"}}</td><td>{{.Status}}</td></tr>
{{end}}</tbody></table></body></html>`))

// HandleIndex renders the applications table.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListApplicationRecords(r.Context())
	if err != nil {
		h.log.Error("Failed to list applications", zap.Error(err))
		http.Error(w, "Internal error retrieving applications.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, records); err != nil {
		h.log.Error("Failed to render index", zap.Error(err))
	}
}

// HandleConfig returns the non-secret configuration snapshot.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if h.snapshot == nil {
		h.respondWithJSON(w, http.StatusOK, map[string]any{})
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.snapshot())
}

// HandleList returns all applications, most recent first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListApplicationRecords(r.Context())
	if err != nil {
		h.log.Error("Failed to list applications", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal error retrieving applications.")
		return
	}
	if records == nil {
		records = []schemas.ApplicationRecord{}
	}
	h.respondWithJSON(w, http.StatusOK, records)
}

// HandleGet returns one application.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.store.GetApplicationRecord(r.Context(), id)
	if errors.Is(err, schemas.ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "Application not found")
		return
	}
	if err != nil {
		h.log.Error("Failed to get application", zap.Int64("id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal error retrieving application.")
		return
	}
	h.respondWithJSON(w, http.StatusOK, rec)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// HandleNotes replaces an application's notes.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req notesRequest
	// A missing or unreadable body clears the notes.
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)

	updated, err := h.store.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		h.log.Error("Failed to update notes", zap.Int64("id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal error updating notes.")
		return
	}
	if !updated {
		h.respondWithError(w, http.StatusNotFound, "Application not found")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleCreate records an application submitted outside a run.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var app schemas.NewApplication
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&app); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(app); err != nil {
		h.respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if app.Status == "" {
		app.Status = schemas.StatusApplied
	}

	id, err := h.store.CreateApplicationRecord(r.Context(), app)
	if err != nil {
		h.log.Error("Failed to create application", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal error recording application.")
		return
	}
	h.log.Info("Application created via API", zap.Int64("id", id), zap.String("title", app.JobTitle))
	h.respondWithJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handlers) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusNotFound, "Application not found")
		return 0, false
	}
	return id, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(msgs, "; ")
}

// respondWithError sends {"error": message}.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func (h *Handlers) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
