// Package httpapi serves the authoritative entity API over a persistent store
// and a blob store. It is the reference backend the engine talks to in
// integration tests and in cmd/entitysync-server.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"entitysync/internal/blob"
	"entitysync/internal/core"
	"entitysync/pkg/domain"
)

// DefaultPolicyExpiry bounds how long issued upload policies stay valid.
const DefaultPolicyExpiry = 15 * time.Minute

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler provides HTTP access to entities, relations and upload policies.
type Handler struct {
	Store   domain.PersistentStore
	Blobs   blob.Store
	Guards  *domain.GuardSet
	Logger  core.Logger
	Metrics core.MetricsRecorder
	// PolicyExpiry overrides DefaultPolicyExpiry when positive.
	PolicyExpiry time.Duration
	Now          func() time.Time
}

// NewHandler constructs a handler with the built-in guards. blobs may be nil,
// in which case policy endpoints answer 503.
func NewHandler(store domain.PersistentStore, blobs blob.Store) *Handler {
	return &Handler{Store: store, Blobs: blobs, Guards: core.DefaultGuards()}
}

var kindsByPlural = map[string]domain.EntityKind{
	domain.KindTeam.Plural():       domain.KindTeam,
	domain.KindUser.Plural():       domain.KindUser,
	domain.KindCollection.Plural(): domain.KindCollection,
	domain.KindProject.Plural():    domain.KindProject,
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusInternalServerError, "entity store not configured")
		return
	}
	start := h.now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	op := h.route(rec, r)
	h.metrics().Observe(r.Context(), "http."+op, rec.status < http.StatusInternalServerError, h.now().Sub(start))
	h.logger().Debug("request served", "method", r.Method, "path", r.URL.Path, "status", rec.status)
}

// route dispatches the request and returns the operation name used for metrics.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) string {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	kind, ok := kindsByPlural[segments[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "resource not found")
		return "unknown"
	}
	switch len(segments) {
	case 1:
		if r.Method != http.MethodPost || (kind != domain.KindTeam && kind != domain.KindCollection) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return "create"
		}
		h.handleCreate(w, r, kind)
		return "create"
	case 2:
		ref := domain.Ref(kind, segments[1])
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, ref)
			return "get"
		case http.MethodPatch:
			h.handlePatch(w, r, ref)
			return "patch"
		}
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "entity"
	case 3:
		return h.routeEntityAction(w, r, kind, segments[1], segments[2])
	case 4:
		ref := domain.Ref(kind, segments[1])
		if kind == domain.KindCollection && (segments[2] == "add" || segments[2] == "remove") {
			if r.Method != http.MethodPatch {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return "collection." + segments[2]
			}
			h.handleCollectionProject(w, r, ref, segments[2], segments[3])
			return "collection." + segments[2]
		}
		return h.routeRelationItem(w, r, ref, segments[2], segments[3])
	case 5:
		if kind == domain.KindTeam && segments[2] == domain.RelationProjects && segments[4] == "join" {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return "join"
			}
			h.handleJoin(w, r, segments[1], segments[3])
			return "join"
		}
	}
	writeError(w, http.StatusNotFound, "resource not found")
	return "unknown"
}

func (h *Handler) routeEntityAction(w http.ResponseWriter, r *http.Request, kind domain.EntityKind, id, action string) string {
	switch {
	case kind == domain.KindTeam && id == "byUrl":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return "byUrl"
		}
		h.handleTeamByURL(w, r, action)
		return "byUrl"
	case kind == domain.KindProject && action == "authorization":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return "authorization"
		}
		h.handleRevokeAuthorization(w, r, id)
		return "authorization"
	case strings.HasSuffix(action, "ImagePolicy"):
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return "policy"
		}
		h.handlePolicy(w, r, domain.Ref(kind, id), domain.AssetPurpose(strings.TrimSuffix(action, "ImagePolicy")))
		return "policy"
	}
	writeError(w, http.StatusNotFound, "resource not found")
	return "unknown"
}

func (h *Handler) routeRelationItem(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, segment, itemID string) string {
	relation, ok := relationForRoute(ref.Kind, segment)
	if !ok {
		writeError(w, http.StatusNotFound, "relation not found")
		return "relation"
	}
	switch r.Method {
	case http.MethodPost:
		h.handleAddItem(w, r, ref, relation, itemID)
		return "relation.add"
	case http.MethodDelete:
		h.handleRemoveItem(w, r, ref, relation, itemID)
		return "relation.remove"
	case http.MethodPatch:
		h.handleSetItem(w, r, ref, relation, itemID)
		return "relation.set"
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return "relation"
}

// relationForRoute maps a path segment to a relation, by route first and
// then by name.
func relationForRoute(kind domain.EntityKind, segment string) (domain.RelationSpec, bool) {
	schema, ok := domain.SchemaFor(kind)
	if !ok {
		return domain.RelationSpec{}, false
	}
	for _, spec := range schema.Relations {
		if spec.Route != "" && spec.Route == segment {
			return spec, true
		}
	}
	return schema.Relation(segment)
}

// Caller returns the user id the request acts for. The reference backend
// treats the bearer token as that id.
func Caller(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// readObject decodes an optional JSON object body keeping numbers exact.
func readObject(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	obj, err := domain.DecodeObject(raw)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// statusError carries the HTTP status of a request-level failure.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &statusError{status: http.StatusBadRequest, err: err}
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var se *statusError
	var nf domain.ErrEntityNotFound
	var rv domain.RuleViolationError
	var me *domain.MutationError
	switch {
	case errors.As(err, &se):
		writeError(w, se.status, se.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &rv):
		writeError(w, http.StatusUnprocessableEntity, rv.Error())
	case errors.As(err, &me):
		status := http.StatusUnprocessableEntity
		if me.Kind == domain.ErrorNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, me.UserMessage())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger().Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logger() core.Logger {
	if h.Logger == nil {
		return nopLogger{}
	}
	return h.Logger
}

func (h *Handler) metrics() core.MetricsRecorder {
	if h.Metrics == nil {
		return nopMetrics{}
	}
	return h.Metrics
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeEntity(w http.ResponseWriter, status int, entity domain.Entity) {
	obj, err := domain.EntityObject(entity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, obj)
}
