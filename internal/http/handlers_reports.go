package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

type reportsView struct {
	Params     ReportParams
	Months     []core.MonthOption
	Users      []core.User
	Report     core.MonthlyReport
	Categories []core.CategoryAmount
	Days       []core.DayAmount
	MaxDay     core.Money
	Loaded     bool
}

// handleReports renders the monthly report. Admins may pick any user; the
// picker is left out when the users list is unavailable.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	client := s.apiFor(r)

	params := ParseReportParams(r.URL.Query(), s.now())
	if !sess.IsAdmin() {
		params.UserID = 0
	}
	view := reportsView{Params: params, Months: core.LastMonths(s.now(), 12)}

	var report core.MonthlyReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report, err = client.MonthlyReport(gctx, params.YearMonth, params.UserID)
		return err
	})
	if sess.IsAdmin() {
		g.Go(func() error {
			users, err := client.ReportUsers(gctx)
			if err != nil {
				log.FromContext(ctx).WarnContext(ctx, "Report users lookup failed", log.FieldError, err)
				return nil
			}
			view.Users = users
			return nil
		})
	}

	data := pageData{}
	status := http.StatusOK
	if params.Invalid {
		data.Error = "Invalid month, showing the current one."
	}

	if err := g.Wait(); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to load report", log.FieldError, err,
			"year_month", params.YearMonth, "user_id", params.UserID)
		status = http.StatusBadGateway
		data.Error = "Failed to load report data. " + api.Message(err)
	} else {
		view.Report = report
		view.Categories = report.Categories()
		view.Days = report.Days()
		for _, d := range view.Days {
			if d.Amount.Cents > view.MaxDay.Cents {
				view.MaxDay = d.Amount
			}
		}
		view.Loaded = true
	}

	data.Data = view
	s.render(w, r, status, "reports", data)
}
