package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"artreg.org/internal/audit"
	"artreg.org/internal/auth"
	"artreg.org/internal/registry"
)

// authenticateRequest mirrors the original registry's login shape: the user
// block names the subject, the secret block carries the password.
type authenticateRequest struct {
	User struct {
		Name    string `json:"name"`
		IsAdmin bool   `json:"is_admin,omitempty"`
	} `json:"user"`
	Secret struct {
		Password string `json:"password"`
	} `json:"secret"`
}

// handleAuthenticate exchanges a credential for a bearer token. The route is
// public but still rate limited through the edge middleware; failed attempts
// are audited without the password.
func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if a.tokens == nil || a.creds == nil {
		writeError(w, r, http.StatusNotImplemented, "authentication is not configured")
		return
	}

	var req authenticateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.User.Name)
	if name == "" || req.Secret.Password == "" {
		writeError(w, r, http.StatusBadRequest, "user name and password are required")
		return
	}

	role, ok := a.creds.Verify(name, req.Secret.Password)
	if !ok {
		a.rec.Record(r.Context(), audit.ActionTokenIssue, name, "", "token", false, nil)
		writeError(w, r, http.StatusUnauthorized, "invalid user or password")
		return
	}

	signed, tok, err := a.tokens.Issue(name, role)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	a.rec.Record(r.Context(), audit.ActionTokenIssue, name, tok.ID, "token", true,
		map[string]string{"role": role})
	writeJSON(w, http.StatusOK, "bearer "+signed)
}

// handleReset restores the registry to its default empty state. Admin only.
func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "DELETE /reset", auth.PermAdmin, "")
	if !ok {
		return
	}
	err := a.svc.Reset(r.Context())
	a.rec.Record(r.Context(), audit.ActionRegistryReset, grant.SubjectID, "", "registry", err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Registry is reset."})
}

// handleListArtifacts runs a union of exact queries with offset pagination.
// The offset for the next page travels in the X-Next-Offset header.
func (a *API) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "POST /artifacts", auth.PermSearch, "")
	if !ok {
		return
	}

	var queries []registry.Query
	if err := decodeJSON(w, r, &queries); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(queries) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one query is required")
		return
	}
	offset, err := offsetParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	page, err := a.svc.List(r.Context(), queries, offset, a.cfg.MaxPageSize)
	a.rec.Record(r.Context(), audit.ActionArtifactSearch, grant.SubjectID, "", "query", err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writePage(w, page)
}

// handleSearchByRegex searches names and readmes with a validated pattern.
// The gate already ran the safety analyzer on it.
func (a *API) handleSearchByRegex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Regex string `json:"regex"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	r, grant, ok := a.admit(w, r, "POST /artifact/byRegEx", auth.PermSearch, req.Regex)
	if !ok {
		return
	}
	offset, err := offsetParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	page, err := a.svc.Search(r.Context(), req.Regex, offset, a.cfg.MaxPageSize)
	a.rec.Record(r.Context(), audit.ActionArtifactSearch, grant.SubjectID, "", "pattern", err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	if offset == 0 && len(page.Items) == 0 {
		writeError(w, r, http.StatusNotFound, "no artifact matched the pattern")
		return
	}
	writePage(w, page)
}

// handleByName lists every artifact registered under an exact name.
func (a *API) handleByName(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "GET /artifact/byName/:name", auth.PermSearch, "")
	if !ok {
		return
	}
	metas, err := a.svc.ByName(r.Context(), r.PathValue("name"))
	a.rec.Record(r.Context(), audit.ActionArtifactSearch, grant.SubjectID, "", "name", err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// handleCreateArtifact registers a new artifact of the path's type.
func (a *API) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "POST /artifact/:type", auth.PermUpload, "")
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	artifact, err := a.svc.Create(r.Context(), r.PathValue("artifact_type"), req.URL)
	a.rec.Record(r.Context(), audit.ActionArtifactCreate, grant.SubjectID, artifact.ID, string(artifact.Type), err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artifactEnvelope(artifact))
}

// handleGetArtifact fetches one artifact by type and id.
func (a *API) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "GET /artifacts/:type/:id", auth.PermDownload, "")
	if !ok {
		return
	}
	artifact, err := a.svc.Get(r.Context(), r.PathValue("artifact_type"), r.PathValue("id"))
	a.rec.Record(r.Context(), audit.ActionArtifactDownload, grant.SubjectID, r.PathValue("id"), r.PathValue("artifact_type"), err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifactEnvelope(artifact))
}

// handleUpdateArtifact replaces the artifact's source URL.
func (a *API) handleUpdateArtifact(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "PUT /artifacts/:type/:id", auth.PermUpload, "")
	if !ok {
		return
	}

	var req struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.svc.UpdateURL(r.Context(), r.PathValue("artifact_type"), r.PathValue("id"), req.Data.URL)
	a.rec.Record(r.Context(), audit.ActionArtifactUpdate, grant.SubjectID, r.PathValue("id"), r.PathValue("artifact_type"), err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Artifact is updated."})
}

// handleDeleteArtifact removes one artifact.
func (a *API) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	r, grant, ok := a.admit(w, r, "DELETE /artifacts/:type/:id", auth.PermUpload, "")
	if !ok {
		return
	}
	err := a.svc.Delete(r.Context(), r.PathValue("artifact_type"), r.PathValue("id"))
	a.rec.Record(r.Context(), audit.ActionArtifactDelete, grant.SubjectID, r.PathValue("id"), r.PathValue("artifact_type"), err == nil,
		auditMeta(err))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Artifact is deleted."})
}

// handleAuditLogs serves the admin audit query: time range, subject, action,
// limit, newest first.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	r, _, ok := a.admit(w, r, "GET /audit/logs", auth.PermAdmin, "")
	if !ok {
		return
	}

	f := audit.Filter{
		SubjectID: strings.TrimSpace(r.URL.Query().Get("subject_id")),
		Action:    audit.Action(strings.TrimSpace(r.URL.Query().Get("action"))),
	}
	var err error
	if f.Start, err = timeParam(r, "start"); err != nil {
		writeError(w, r, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	if f.End, err = timeParam(r, "end"); err != nil {
		writeError(w, r, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	events, err := a.rec.Query(r.Context(), f)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- shaping helpers ---

// artifactEnvelope renders the metadata/data response shape the registry's
// clients expect.
func artifactEnvelope(a registry.Artifact) map[string]any {
	data := map[string]any{"url": a.URL}
	if a.DownloadURL != "" {
		data["download_url"] = a.DownloadURL
	}
	return map[string]any{
		"metadata": registry.Meta{Name: a.Name, ID: a.ID, Type: a.Type},
		"data":     data,
	}
}

func writePage(w http.ResponseWriter, page registry.Page) {
	if page.NextOffset != nil {
		w.Header().Set("X-Next-Offset", strconv.Itoa(*page.NextOffset))
	}
	items := page.Items
	if items == nil {
		items = []registry.Meta{}
	}
	writeJSON(w, http.StatusOK, items)
}

func offsetParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("offset"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func auditMeta(err error) map[string]string {
	if err == nil {
		return nil
	}
	return map[string]string{"error": errClass(err)}
}
