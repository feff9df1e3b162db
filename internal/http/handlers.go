package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"expensio/internal/log"
)

type appMetrics struct {
	logins         int64
	loginFailures  int64
	registrations  int64
	logouts        int64
	guardRedirects int64
	cacheHits      int64
	cacheMisses    int64
	uptime         time.Time
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady checks the session store and the expense API.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	fail := func(name string, err error) {
		checks[name] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.ping != nil {
		if err := s.ping(ctx); err != nil {
			fail("session_store", err)
		} else {
			checks["session_store"] = "ok"
		}
	} else {
		checks["session_store"] = "ok"
	}

	if err := s.api.Ping(ctx); err != nil {
		fail("expense_api", err)
	} else {
		checks["expense_api"] = "ok"
	}

	checks["cache"] = map[string]interface{}{
		"categories_entries": s.categoriesCache.Size(),
		"users_entries":      s.usersCache.Size(),
	}

	if httpStatus != http.StatusOK {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "checks", checks)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	counters := []struct {
		name, help string
		value      int64
	}{
		{"http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests},
		{"http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors},
		{"session_logins_total", "Successful logins", atomic.LoadInt64(&s.appMetrics.logins)},
		{"session_login_failures_total", "Rejected or failed logins", atomic.LoadInt64(&s.appMetrics.loginFailures)},
		{"session_registrations_total", "Successful registrations", atomic.LoadInt64(&s.appMetrics.registrations)},
		{"session_logouts_total", "Logouts", atomic.LoadInt64(&s.appMetrics.logouts)},
		{"guard_redirects_total", "Navigations redirected by the route guard", atomic.LoadInt64(&s.appMetrics.guardRedirects)},
		{"cache_hits_total", "Lookup cache hits", atomic.LoadInt64(&s.appMetrics.cacheHits)},
		{"cache_misses_total", "Lookup cache misses", atomic.LoadInt64(&s.appMetrics.cacheMisses)},
		{"rate_limit_hits_total", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits},
		{"security_suspicious_requests_total", "Requests flagged as probing", securityMetrics.SuspiciousRequests},
	}

	w.WriteHeader(http.StatusOK)
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n\n", c.name, c.value)
	}

	fmt.Fprintf(w, "# HELP rate_limit_active_clients Clients tracked by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_active_clients gauge\n")
	fmt.Fprintf(w, "rate_limit_active_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Time since the server started\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", s.now().Sub(s.appMetrics.uptime).Seconds())
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many attempts. Please try again in a minute.").
		TriggerErrorNotification("Too many attempts. Please try again in a minute.").
		Write(w)
}
