package api

import (
	"net/http"
)

// withTenant resolves the X-Tenant header to a tenant and binds its database
// scope into the request context. Requests without a resolvable active tenant
// never reach a handler.
func (s *Server) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.Header.Get(tenantHeader)
		if slug == "" {
			s.respond(w, http.StatusBadRequest, errorResponse{Error: "missing " + tenantHeader + " header"})
			return
		}

		t, err := s.tenants.FindBySlug(r.Context(), slug)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		ctx, err := s.manager.Bind(r.Context(), t)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
