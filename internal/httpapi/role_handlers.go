package httpapi

import (
	"net/http"
	"strings"

	"shopadmin.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	DisplayName *string   `json:"display_name"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "users", "read"); !ok {
			return
		}
		roles, err := a.auth.ListRoles(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		principal, ok := a.requireSuperAdmin(w, r)
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), principal, auth.CreateRoleInput{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			Description: req.Description,
			Permissions: req.Permissions,
			IP:          clientIP(r),
			UserAgent:   r.UserAgent(),
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensurePermission(w, r, "users", "read"); !ok {
			return
		}
		role, err := a.auth.GetRole(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		principal, ok := a.requireSuperAdmin(w, r)
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.UpdateRole(r.Context(), principal, id, auth.UpdateRoleInput{
			DisplayName: req.DisplayName,
			Description: req.Description,
			Permissions: req.Permissions,
			IP:          clientIP(r),
			UserAgent:   r.UserAgent(),
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		principal, ok := a.requireSuperAdmin(w, r)
		if !ok {
			return
		}
		if err := a.auth.DeleteRole(r.Context(), principal, id, clientIP(r), r.UserAgent()); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.ensurePermission(w, r, "users", "read"); !ok {
		return
	}
	perms, err := a.auth.ListPermissions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
