// Package api implements the HTTP surface of the route solver service.
package api

import (
	"net/http"
	"strings"

	"routesolver/internal/auth"
)

const defaultTenant = "t_demo"

// getPrincipal extracts tenant and role from a bearer token or, in dev
// mode, from the X-Tenant-Id / X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		return s.Auth.Verify(tok)
	}
	if s.Auth != nil && s.Auth.Mode() != auth.ModeDev {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	if tenant == "" {
		tenant = defaultTenant
	}
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

// principal resolves the caller or answers 401.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}

// admin resolves the caller and requires the admin role.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return p, false
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
