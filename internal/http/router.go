package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/peep/internal/domain"
	"github.com/splax/peep/internal/repository"
	"github.com/splax/peep/internal/service/environment"
	"github.com/splax/peep/internal/service/project"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	project     project.Service
	environment environment.Service
	limiter     RateLimiter
	jwtSecret   string
	dbHealth    func(context.Context) error
	metrics     *routerMetrics
}

const (
	rateWindowDefault  = time.Minute
	rateLimitUserRead  = 120
	rateLimitUserWrite = 60
	healthCheckTimeout = 2 * time.Second

	routeProjects = "/projects/"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, projectSvc project.Service, environmentSvc environment.Service, limiter RateLimiter, jwtSecret string, dbHealth func(context.Context) error) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		project:     projectSvc,
		environment: environmentSvc,
		limiter:     limiter,
		jwtSecret:   strings.TrimSpace(jwtSecret),
		dbHealth:    dbHealth,
		metrics:     newRouterMetrics(),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", r.metrics.handler())
	r.mux.HandleFunc(routeProjects, r.audit(routeProjects, r.handlerAuthRate(routeProjects, rateLimitUserRead, rateWindowDefault, r.handleProjectSubroutes)))
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	parts, ok := splitEscapedPath(strings.TrimPrefix(req.URL.EscapedPath(), routeProjects))
	if !ok || len(parts) < 2 || parts[0] == "" || parts[1] != "environments" {
		r.notFound(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for project route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	proj, err := r.project.Authorize(req.Context(), parts[0], info.TeamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	switch {
	case len(parts) == 2:
		r.handleProjectEnvironments(w, req, proj)
	case len(parts) == 3 && parts[2] != "":
		r.handleProjectEnvironment(w, req, proj, parts[2])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjectEnvironments(w http.ResponseWriter, req *http.Request, proj *domain.Project) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	visibility := string(environment.DefaultVisibility)
	if values, ok := req.URL.Query()["visibility"]; ok {
		visibility = values[0]
	}
	items, err := r.environment.List(req.Context(), proj.ID, visibility)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.recordEnvironmentsListed(visibility, len(items))
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, marshalEnvironmentProject(item))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleProjectEnvironment(w http.ResponseWriter, req *http.Request, proj *domain.Project, name string) {
	switch req.Method {
	case http.MethodGet:
		item, err := r.environment.Get(req.Context(), proj.ID, name)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, marshalEnvironmentProject(*item))
	case http.MethodPut:
		if !r.allowWrite(w, req) {
			return
		}
		var payload struct {
			IsHidden *bool `json:"isHidden"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if payload.IsHidden == nil {
			writeError(w, http.StatusBadRequest, "isHidden is required")
			return
		}
		item, err := r.environment.SetHidden(req.Context(), proj.ID, name, *payload.IsHidden)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, marshalEnvironmentProject(*item))
	default:
		r.methodNotAllowed(w)
	}
}

// allowWrite applies the tighter write budget on top of the route's read budget.
func (r *Router) allowWrite(w http.ResponseWriter, req *http.Request) bool {
	allowed := false
	r.withRateLimit("write", rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, func(http.ResponseWriter, *http.Request) {
		allowed = true
	})(w, req)
	return allowed
}

func marshalEnvironmentProject(item domain.EnvironmentProject) map[string]any {
	payload := map[string]any{
		"id":       item.EnvironmentID,
		"name":     item.EnvironmentName,
		"isHidden": item.IsHidden,
	}
	if !item.CreatedAt.IsZero() {
		payload["dateCreated"] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var invalidVisibility *environment.InvalidVisibilityError
	switch {
	case errors.As(err, &invalidVisibility):
		writeError(w, http.StatusBadRequest, invalidVisibility.Error())
	case errors.Is(err, repository.ErrNotFound):
		r.notFound(w)
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.TeamID != "" {
				fields = append(fields, "team_id", info.TeamID)
			}
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

// splitEscapedPath splits on "/" before unescaping so encoded slashes stay
// inside a segment. A trailing slash is ignored.
func splitEscapedPath(escaped string) ([]string, bool) {
	escaped = strings.TrimSuffix(escaped, "/")
	raw := strings.Split(escaped, "/")
	parts := make([]string, len(raw))
	for i, seg := range raw {
		unescaped, err := url.PathUnescape(seg)
		if err != nil {
			return nil, false
		}
		parts[i] = unescaped
	}
	return parts, true
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "The requested resource does not exist")
}
