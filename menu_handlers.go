package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"erpgate/server/audit"
	"erpgate/server/authz"
	"erpgate/server/router"
	"erpgate/server/tenancy"
)

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}

// handleMenu serves GET /api/v1/menu: the caller's permission-filtered menu
// for the tenant named by the Host header. The token's tenant claim is
// checked against the host-resolved tenant; the host always wins.
func (s *server) handleMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	tc, err := s.resolver.Resolve(ctx, r.Host)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantUnresolved) {
			s.sink.Record(ctx, audit.Event{
				Kind:       audit.EventTenantUnknown,
				Subdomain:  tenancy.SubdomainFromHost(r.Host),
				RemoteAddr: r.RemoteAddr,
			})
			writeError(w, http.StatusUnauthorized, "unknown tenant")
			return
		}
		s.log.Error("tenant resolution failed", zap.String("host", r.Host), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "tenant directory unavailable")
		return
	}

	claims, err := parseBearer(r.Header.Get("Authorization"), s.cfg.Auth.JWTSecret)
	if err != nil {
		s.sink.Record(ctx, audit.Event{
			Kind:       audit.EventAuthFailed,
			TenantID:   tc.TenantID,
			RemoteAddr: r.RemoteAddr,
			Detail:     err.Error(),
		})
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if claims.TenantID != "" && claims.TenantID != tc.TenantID {
		s.sink.Record(ctx, audit.Event{
			Kind:       audit.EventTenantMismatch,
			TenantID:   tc.TenantID,
			UserID:     claims.UserID,
			RemoteAddr: r.RemoteAddr,
			Detail:     "token tenant " + claims.TenantID,
		})
		writeError(w, http.StatusUnauthorized, "token tenant mismatch")
		return
	}

	doc, err := s.aggregator.BuildMenu(ctx, tc, claims.UserID)
	if err != nil {
		s.writeMenuError(w, r, tc, claims.UserID, err)
		return
	}

	s.sink.Record(ctx, audit.Event{
		Kind:     audit.EventMenuServed,
		TenantID: tc.TenantID,
		UserID:   claims.UserID,
	})
	writeJSON(w, http.StatusOK, doc)
}

// writeMenuError maps aggregation failures to status codes: backpressure is
// retryable by the client (429), unavailable stores are 503, everything else
// is a 500.
func (s *server) writeMenuError(w http.ResponseWriter, r *http.Request, tc tenancy.TenantContext, userID string, err error) {
	switch {
	case errors.Is(err, router.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "tenant store busy, retry later")
	case errors.Is(err, authz.ErrAuthorizationUnavailable), errors.Is(err, router.ErrConnectionUnavailable):
		writeError(w, http.StatusServiceUnavailable, "authorization data unavailable")
	default:
		s.log.Error("menu build failed",
			zap.String("tenant_id", tc.TenantID),
			zap.String("user_id", userID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
