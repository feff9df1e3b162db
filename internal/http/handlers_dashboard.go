package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

type dashboardView struct {
	Overview core.Overview
	MaxMonth core.Money
	AllUsers bool
}

// handleDashboard loads the category totals and the monthly series in
// parallel. Admins see everyone's expenses, users only their own.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	client := s.apiFor(r)
	scope := api.ScopeFor(sess.Role)

	var byCategory, monthly map[string]float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byCategory, err = client.TotalByCategory(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		monthly, err = client.MonthlySummary(gctx, scope)
		return err
	})

	if err := g.Wait(); err != nil {
		if s.expireSession(w, r, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Failed to load dashboard", log.FieldError, err)
		ov := core.BuildOverview(s.now(), nil, nil)
		s.render(w, r, http.StatusBadGateway, "dashboard", pageData{
			Error: "Failed to load dashboard data. " + api.Message(err),
			Data:  dashboardView{Overview: ov, AllUsers: scope == api.ScopeAll},
		})
		return
	}

	ov := core.BuildOverview(s.now(), byCategory, monthly)
	s.render(w, r, http.StatusOK, "dashboard", pageData{
		Data: dashboardView{
			Overview: ov,
			MaxMonth: core.MaxMonth(ov.Months),
			AllUsers: scope == api.ScopeAll,
		},
	})
}
