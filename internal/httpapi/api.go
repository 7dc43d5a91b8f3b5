package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"artreg.org/internal/audit"
	"artreg.org/internal/auth"
	"artreg.org/internal/config"
	"artreg.org/internal/gate"
	"artreg.org/internal/obs"
	"artreg.org/internal/regexsafe"
	"artreg.org/internal/registry"
)

// ReadyProbe checks readiness (e.g., ping the database).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Every data route passes through the gate before it
// touches the registry.
type API struct {
	mux     *http.ServeMux
	cfg     config.Config
	gate    *gate.Gate
	svc     *registry.Service
	rec     *audit.Recorder
	tokens  *auth.TokenStore
	creds   auth.CredentialVerifier
	ready   ReadyProbe
	version string
}

// New wires the API.
func New(cfg config.Config, g *gate.Gate, svc *registry.Service, rec *audit.Recorder, tokens *auth.TokenStore, creds auth.CredentialVerifier, ready ReadyProbe, version string) *API {
	a := &API{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		gate:    g,
		svc:     svc,
		rec:     rec,
		tokens:  tokens,
		creds:   creds,
		ready:   ready,
		version: version,
	}

	a.mux.HandleFunc("GET /health", a.handleHealth)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)
	a.mux.HandleFunc("GET /tracks", a.handleTracks)
	a.mux.HandleFunc("PUT /authenticate", a.handleAuthenticate)
	a.mux.HandleFunc("DELETE /reset", a.handleReset)

	a.mux.HandleFunc("POST /artifacts", a.handleListArtifacts)
	a.mux.HandleFunc("POST /artifact/byRegEx", a.handleSearchByRegex)
	a.mux.HandleFunc("GET /artifact/byName/{name}", a.handleByName)
	a.mux.HandleFunc("POST /artifact/{artifact_type}", a.handleCreateArtifact)
	a.mux.HandleFunc("GET /artifacts/{artifact_type}/{id}", a.handleGetArtifact)
	a.mux.HandleFunc("PUT /artifacts/{artifact_type}/{id}", a.handleUpdateArtifact)
	a.mux.HandleFunc("DELETE /artifacts/{artifact_type}/{id}", a.handleDeleteArtifact)

	a.mux.HandleFunc("GET /audit/logs", a.handleAuditLogs)

	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = obs.Instrument(h)
	h = RateLimit(h, 2*a.cfg.RateLimit, a.cfg.RateLimit)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// admit runs the gate for a route and, on rejection, writes the response.
// On admission the grant is attached to the returned request's context so
// deeper layers can read the acting subject.
func (a *API) admit(w http.ResponseWriter, r *http.Request, route string, perm auth.Permission, pattern string) (*http.Request, auth.Grant, bool) {
	grant, err := a.gate.Admit(r.Context(), gate.Request{
		Token:      bearerToken(r),
		ClientKey:  clientIP(r),
		Route:      route,
		Permission: perm,
		Pattern:    pattern,
	})
	if err != nil {
		a.writeDomainError(w, r, err)
		return r, auth.Grant{}, false
	}
	return r.WithContext(auth.ContextWithGrant(r.Context(), grant)), grant, true
}

// bearerToken pulls the credential from Authorization or the legacy
// X-Authorization header, with or without the "bearer " prefix.
func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	if raw == "" {
		raw = r.Header.Get("X-Authorization")
	}
	raw = strings.TrimSpace(raw)
	const prefix = "bearer "
	if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		raw = raw[len(prefix):]
	}
	return strings.TrimSpace(raw)
}

// --- responses ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r.Context()),
	})
}

// writeDomainError maps pipeline and registry errors onto the API's status
// contract. Pattern rejections stay generic so a probing caller learns
// nothing about which check fired.
func (a *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrRateLimited):
		w.Header().Set("Retry-After", retryAfterSeconds(a.cfg.RateLimitWindow))
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenExhausted):
		writeError(w, r, http.StatusUnauthorized, "token exhausted")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, regexsafe.ErrPatternEmpty):
		writeError(w, r, http.StatusBadRequest, "pattern is required")
	case errors.Is(err, regexsafe.ErrPatternTooLong):
		writeError(w, r, http.StatusBadRequest, "pattern exceeds length limit")
	case errors.Is(err, regexsafe.ErrPatternSyntax):
		writeError(w, r, http.StatusBadRequest, "invalid pattern")
	case errors.Is(err, regexsafe.ErrPatternUnsafe):
		writeError(w, r, http.StatusBadRequest, "unsafe pattern")
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid request")
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "artifact does not exist")
	case errors.Is(err, registry.ErrTooManyResults), errors.Is(err, registry.ErrOffsetTooDeep):
		writeError(w, r, http.StatusRequestEntityTooLarge, "result set too large")
	case errors.Is(err, registry.ErrQueryTimeout):
		writeError(w, r, http.StatusServiceUnavailable, "query timed out")
	default:
		obs.LogError("internal error", map[string]any{
			"request_id": requestIDFrom(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// errClass reduces an error to the label that is safe to persist in audit
// metadata. Never the message, never a stack.
func errClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	case errors.Is(err, registry.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, registry.ErrTooManyResults):
		return "too_many_results"
	case errors.Is(err, registry.ErrOffsetTooDeep):
		return "offset_too_deep"
	case errors.Is(err, registry.ErrQueryTimeout):
		return "timeout"
	default:
		return "internal"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// --- plain handlers ---

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "alive",
		"service": "artreg-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"plannedTracks": []string{"Access control track"},
	})
}
