package core

import "strings"

// FilterExpenses returns the expenses whose description, category name or
// user name contains q, case-insensitively. An empty query keeps everything.
func FilterExpenses(expenses []Expense, q string) []Expense {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return expenses
	}
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.CategoryName()), q) ||
			strings.Contains(strings.ToLower(e.UserName()), q) {
			out = append(out, e)
		}
	}
	return out
}
