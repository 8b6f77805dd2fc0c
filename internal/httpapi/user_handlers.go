package httpapi

import (
	"net/http"
	"strings"

	"shopadmin.org/internal/auth"
)

type createUserRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	RoleID       string `json:"role_id"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

type updateUserRequest struct {
	Username     *string `json:"username"`
	Email        *string `json:"email"`
	FullName     *string `json:"full_name"`
	Phone        *string `json:"phone"`
	AvatarURL    *string `json:"avatar_url"`
	Status       *string `json:"status"`
	RoleID       *string `json:"role_id"`
	Password     *string `json:"password"`
	IsSuperAdmin *bool   `json:"is_super_admin"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensurePermission(w, r, "users", "read"); !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	users, total, err := a.auth.ListUsers(r.Context(), auth.UserFilter{
		Status: q.Get("status"),
		RoleID: q.Get("role_id"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.ensurePermission(w, r, "users", "create")
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.CreateUser(r.Context(), principal, auth.CreateUserInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		Phone:        req.Phone,
		RoleID:       req.RoleID,
		IsSuperAdmin: req.IsSuperAdmin,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, id)
	case http.MethodPut:
		a.updateUser(w, r, id)
	case http.MethodDelete:
		a.deleteUser(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.ensurePermission(w, r, "users", "read"); !ok {
		return
	}
	user, err := a.auth.GetUser(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.ensurePermission(w, r, "users", "update")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.UpdateUser(r.Context(), principal, id, auth.UpdateUserInput{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		AvatarURL:    req.AvatarURL,
		Status:       req.Status,
		RoleID:       req.RoleID,
		Password:     req.Password,
		IsSuperAdmin: req.IsSuperAdmin,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.ensurePermission(w, r, "users", "delete")
	if !ok {
		return
	}
	if err := a.auth.DeleteUser(r.Context(), principal, id, clientIP(r), r.UserAgent()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
