// Package server exposes form storage, value schemas and submissions over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/components/timezones"
	"github.com/goliatone/go-clinicform/pkg/authoring"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/schemaexport"
	"github.com/goliatone/go-clinicform/pkg/store"
)

// Config holds the server collaborators. Store is required; a nil Sink
// disables the submissions endpoint.
type Config struct {
	Store          store.FormStore
	Sink           runtime.Submitter
	Logger         *zap.Logger
	MetricsHandler http.Handler
	Timezones      *timezones.Component
	RequestTimeout time.Duration
}

type server struct {
	store  store.FormStore
	sink   runtime.Submitter
	logger *zap.Logger
}

// New builds the router.
func New(cfg Config) http.Handler {
	s := &server{store: cfg.Store, sink: cfg.Sink, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/forms", s.listForms)
		api.Route("/forms/{id}", func(form chi.Router) {
			form.Get("/", s.getForm)
			form.Put("/", s.putForm)
			form.Delete("/", s.deleteForm)
			form.Get("/schema", s.formSchema)
			form.Post("/submissions", s.submit)
		})
	})

	tz := cfg.Timezones
	if tz == nil {
		tz = timezones.New()
	}
	if _, err := tz.RegisterRoutes(r, ""); err != nil {
		s.logger.Warn("timezone routes not mounted", zap.Error(err))
	}
	return r
}

func (s *server) listForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.store.List(r.Context(), r.URL.Query().Get("clinic"))
	if err != nil {
		s.internalError(w, "list forms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forms": forms})
}

func (s *server) getForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.loadForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// putForm stores a complete form document under the path id. The document
// goes through the same sanitising and structural checks as an authoring
// save.
func (s *server) putForm(w http.ResponseWriter, r *http.Request) {
	var form model.FormModel
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	form.ID = chi.URLParam(r, "id")

	saved, err := authoring.New(form, authoring.WithSaver(s.store), authoring.WithLogger(s.logger)).Save(r.Context())
	if err != nil {
		var structural *authoring.StructuralError
		if errors.As(err, &structural) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "form is not structurally valid",
				"code":       "STRUCTURAL_ERROR",
				"violations": structural.Violations,
			})
			return
		}
		s.internalError(w, "save form", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *server) deleteForm(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		s.internalError(w, "delete form", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) formSchema(w http.ResponseWriter, r *http.Request) {
	form, ok := s.loadForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schemaexport.Build(form))
}

type submissionRequest struct {
	Values model.FormValues `json:"values"`
}

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_SINK", "submissions are not accepted")
		return
	}
	form, ok := s.loadForm(w, r)
	if !ok {
		return
	}
	var req submissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	values := visibleValues(form, req.Values)

	if err := schemaexport.New(form).Validate(values); err != nil {
		if verr, ok := schemaexport.AsValidation(err); ok {
			writeRejection(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "submitted values do not match the form", verr.Fields)
			return
		}
		s.internalError(w, "validate submission", err)
		return
	}

	if err := s.sink.Submit(r.Context(), form, values); err != nil {
		if rej, ok := directoryRejection(err); ok {
			status, code := http.StatusUnprocessableEntity, "VALIDATION_ERROR"
			if rej.conflict {
				status, code = http.StatusConflict, "CONFLICT"
			}
			writeRejection(w, status, code, rej.message, rej.fields)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "submission timed out")
			return
		}
		s.internalError(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (s *server) loadForm(w http.ResponseWriter, r *http.Request) (model.FormModel, bool) {
	form, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return model.FormModel{}, false
		}
		s.internalError(w, "load form", err)
		return model.FormModel{}, false
	}
	return form, true
}

func (s *server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writeRejection(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	writeJSON(w, status, map[string]any{"error": message, "code": code, "fields": fields})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
