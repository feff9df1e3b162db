package api

import (
	"context"
	"net/url"
	"strconv"

	"expensio/internal/core"
)

// MonthlyReport fetches the report of yearMonth (YYYY-MM). An empty
// yearMonth means the current month; userID 0 means the caller.
func (c *Client) MonthlyReport(ctx context.Context, yearMonth string, userID int64) (core.MonthlyReport, error) {
	q := url.Values{}
	if yearMonth != "" {
		q.Set("yearMonth", yearMonth)
	}
	if userID > 0 {
		q.Set("userId", strconv.FormatInt(userID, 10))
	}
	var out core.MonthlyReport
	err := c.get(ctx, "/reports/monthly", q, &out)
	return out, err
}

// ReportUsers lists the users an admin can report on.
func (c *Client) ReportUsers(ctx context.Context) ([]core.User, error) {
	var out []core.User
	err := c.get(ctx, "/reports/users", nil, &out)
	return out, err
}
