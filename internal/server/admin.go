package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doohee323/chat-gateway/internal/domain"
	"github.com/doohee323/chat-gateway/internal/storage"
)

type tenantOut struct {
	ID                 int64  `json:"id"`
	TenantID           string `json:"tenant_id"`
	DisplayName        string `json:"display_name"`
	ProviderBaseURL    string `json:"provider_base_url"`
	ProviderAPIKey     string `json:"provider_api_key"`
	ProviderEmbedToken string `json:"provider_embed_token"`
	AllowedOrigins     string `json:"allowed_origins"`
	Enabled            bool   `json:"enabled"`
}

type tenantCreate struct {
	TenantID           string `json:"tenant_id"`
	DisplayName        string `json:"display_name"`
	ProviderBaseURL    string `json:"provider_base_url"`
	ProviderAPIKey     string `json:"provider_api_key"`
	ProviderEmbedToken string `json:"provider_embed_token"`
	AllowedOrigins     string `json:"allowed_origins"`
	Enabled            *bool  `json:"enabled"`
}

type tenantUpdate struct {
	DisplayName        *string `json:"display_name"`
	ProviderBaseURL    *string `json:"provider_base_url"`
	ProviderAPIKey     *string `json:"provider_api_key"`
	ProviderEmbedToken *string `json:"provider_embed_token"`
	AllowedOrigins     *string `json:"allowed_origins"`
	Enabled            *bool   `json:"enabled"`
}

func toTenantOut(t *storage.Tenant) tenantOut {
	return tenantOut{
		ID:                 t.ID,
		TenantID:           t.TenantID,
		DisplayName:        t.DisplayName,
		ProviderBaseURL:    t.ProviderBaseURL,
		ProviderAPIKey:     t.ProviderAPIKey,
		ProviderEmbedToken: t.ProviderEmbedToken,
		AllowedOrigins:     t.AllowedOrigins,
		Enabled:            t.Enabled,
	}
}

// requireAdmin verifies the bearer admin token and returns its subject.
func (s *Server) requireAdmin(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrUnauthenticated("admin token required")
	}
	subject, err := s.verifier.VerifyAdminToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", err
	}
	AddLogField(r.Context(), "admin", subject)
	return subject, nil
}

// checkTenantOwner rejects admins touching tenants they did not create.
// Legacy rows with no owner are visible to every admin.
func checkTenantOwner(row *storage.Tenant, admin string) error {
	if row.Owner != nil && *row.Owner != admin {
		return domain.ErrForbidden("not authorized to access this tenant")
	}
	return nil
}

// refreshRegistry reloads the tenant snapshot after a mutation so the
// next resolution sees the change.
func (s *Server) refreshRegistry(r *http.Request) {
	if err := s.registry.Refresh(r.Context()); err != nil {
		s.logger.Warn("tenant registry refresh failed", "error", err.Error())
	}
}

func (s *Server) handleAdminListTenants(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := s.store.ListTenants(r.Context(), admin)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]tenantOut, 0, len(rows))
	for i := range rows {
		out = append(out, toTenantOut(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminCreateTenant(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body tenantCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, domain.ErrBadRequest("invalid request body"))
		return
	}

	tenantID := strings.ToLower(strings.TrimSpace(body.TenantID))
	if tenantID == "" {
		writeError(w, r, domain.ErrBadRequest("tenant_id required"))
		return
	}
	displayName := strings.TrimSpace(body.DisplayName)
	if displayName == "" {
		displayName = tenantID
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	now := time.Now().UTC()
	row := &storage.Tenant{
		TenantID:           tenantID,
		DisplayName:        displayName,
		ProviderBaseURL:    strings.TrimRight(strings.TrimSpace(body.ProviderBaseURL), "/"),
		ProviderAPIKey:     strings.TrimSpace(body.ProviderAPIKey),
		ProviderEmbedToken: strings.TrimSpace(body.ProviderEmbedToken),
		AllowedOrigins:     strings.TrimSpace(body.AllowedOrigins),
		Enabled:            enabled,
		Owner:              &admin,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateTenant(r.Context(), row); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, &domain.APIError{
				Type:       domain.ErrorTypeBadRequest,
				Message:    "tenant_id already exists",
				StatusCode: http.StatusConflict,
			})
			return
		}
		writeError(w, r, err)
		return
	}

	s.refreshRegistry(r)
	writeJSON(w, http.StatusCreated, toTenantOut(row))
}

// getOwnedTenant loads a tenant row and applies the ownership check.
func (s *Server) getOwnedTenant(r *http.Request, admin string) (*storage.Tenant, error) {
	tenantID := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "tenantID")))
	row, err := s.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound("tenant not found")
		}
		return nil, err
	}
	if err := checkTenantOwner(row, admin); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Server) handleAdminGetTenant(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.getOwnedTenant(r, admin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantOut(row))
}

func (s *Server) handleAdminUpdateTenant(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.getOwnedTenant(r, admin)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body tenantUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, domain.ErrBadRequest("invalid request body"))
		return
	}

	if body.DisplayName != nil {
		row.DisplayName = strings.TrimSpace(*body.DisplayName)
	}
	if body.ProviderBaseURL != nil {
		row.ProviderBaseURL = strings.TrimRight(strings.TrimSpace(*body.ProviderBaseURL), "/")
	}
	if body.ProviderAPIKey != nil {
		row.ProviderAPIKey = strings.TrimSpace(*body.ProviderAPIKey)
	}
	if body.ProviderEmbedToken != nil {
		row.ProviderEmbedToken = strings.TrimSpace(*body.ProviderEmbedToken)
	}
	if body.AllowedOrigins != nil {
		row.AllowedOrigins = strings.TrimSpace(*body.AllowedOrigins)
	}
	if body.Enabled != nil {
		row.Enabled = *body.Enabled
	}
	row.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTenant(r.Context(), row); err != nil {
		writeError(w, r, err)
		return
	}

	s.refreshRegistry(r)
	writeJSON(w, http.StatusOK, toTenantOut(row))
}

func (s *Server) handleAdminDeleteTenant(w http.ResponseWriter, r *http.Request) {
	admin, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.getOwnedTenant(r, admin)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.DeleteTenant(r.Context(), row.TenantID); err != nil {
		writeError(w, r, err)
		return
	}

	s.refreshRegistry(r)
	w.WriteHeader(http.StatusNoContent)
}
