package http

import (
	"html/template"
	"strconv"
	"strings"

	"expensio/internal/core"
)

var templateFuncs = template.FuncMap{
	"money":   func(m core.Money) string { return m.String() },
	"amount":  func(f float64) string { return core.MoneyFromFloat(f).String() },
	"decimal": func(m core.Money) string { return m.Decimal() },
	"percent": core.Percent,
	"date":    func(d core.Date) string { return d.String() },
	"id":      func(id int64) string { return strconv.FormatInt(id, 10) },
	"fieldError": func(fe core.FieldErrors, key string) string {
		if fe == nil {
			return ""
		}
		return fe[key]
	},
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// notices are the confirmation banners a redirect can ask for.
var notices = map[string]string{
	"registered":       "Registration successful!",
	"logged-out":       "You have been logged out.",
	"expense-created":  "Expense added.",
	"expense-updated":  "Expense updated.",
	"expense-deleted":  "Expense deleted.",
	"category-created": "Category added.",
	"category-updated": "Category updated.",
	"category-deleted": "Category deleted.",
	"user-created":     "User added.",
	"user-updated":     "User updated.",
	"user-deleted":     "User deleted.",
	"profile-updated":  "Profile updated successfully.",
	"password-changed": "Password changed successfully.",
}

func withNotice(path, key string) string {
	return path + "?notice=" + key
}
