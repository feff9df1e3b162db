package api

import (
	"context"
	"fmt"

	"expensio/internal/core"
)

// Scope selects between the aggregates over every user's expenses (admin)
// and those over the caller's own.
type Scope int

const (
	ScopeMine Scope = iota
	ScopeAll
)

func (s Scope) prefix() string {
	if s == ScopeAll {
		return "/expenses"
	}
	return "/expenses/my"
}

// ScopeFor picks the aggregate scope matching a role.
func ScopeFor(role core.Role) Scope {
	if role == core.RoleAdmin {
		return ScopeAll
	}
	return ScopeMine
}

func (c *Client) Expenses(ctx context.Context) ([]core.Expense, error) {
	var out []core.Expense
	err := c.get(ctx, "/expenses", nil, &out)
	return out, err
}

// MyExpenses lists the caller's own expenses.
func (c *Client) MyExpenses(ctx context.Context) ([]core.Expense, error) {
	var out []core.Expense
	err := c.get(ctx, "/expenses/my", nil, &out)
	return out, err
}

// ListExpenses lists what the scope allows to see.
func (c *Client) ListExpenses(ctx context.Context, scope Scope) ([]core.Expense, error) {
	if scope == ScopeAll {
		return c.Expenses(ctx)
	}
	return c.MyExpenses(ctx)
}

func (c *Client) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	var out core.Expense
	err := c.post(ctx, "/expenses", e, &out)
	return out, err
}

func (c *Client) UpdateExpense(ctx context.Context, id int64, e core.Expense) (core.Expense, error) {
	var out core.Expense
	err := c.put(ctx, fmt.Sprintf("/expenses/%d", id), e, &out)
	return out, err
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/expenses/%d", id))
}

// TotalByCategory returns category name to amount.
func (c *Client) TotalByCategory(ctx context.Context, scope Scope) (map[string]float64, error) {
	out := map[string]float64{}
	err := c.get(ctx, scope.prefix()+"/total-by-category", nil, &out)
	return out, err
}

// MonthlySummary returns YYYY-MM to amount.
func (c *Client) MonthlySummary(ctx context.Context, scope Scope) (map[string]float64, error) {
	out := map[string]float64{}
	err := c.get(ctx, scope.prefix()+"/monthly-summary", nil, &out)
	return out, err
}
