package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"expensio/internal/core"
)

// ReportParams holds the period and user selected on the reports page.
type ReportParams struct {
	YearMonth string
	UserID    int64
	Invalid   bool // yearMonth was present but malformed
}

// ParseReportParams reads yearMonth and userId from the query string. A
// missing or malformed yearMonth falls back to the month of now.
func ParseReportParams(query url.Values, now time.Time) ReportParams {
	params := ReportParams{YearMonth: now.Format("2006-01")}

	if v := strings.TrimSpace(query.Get("yearMonth")); v != "" {
		if _, err := core.ParseYearMonth(v); err == nil {
			params.YearMonth = v
		} else {
			params.Invalid = true
		}
	}
	if v := strings.TrimSpace(query.Get("userId")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			params.UserID = id
		}
	}
	return params
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

// formValue returns the sanitized form field.
func formValue(r *http.Request, key string) string {
	return sanitizeInput(r.PostForm.Get(key))
}

// idParam reads the {id} path segment.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
