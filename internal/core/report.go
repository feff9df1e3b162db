package core

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var ErrInvalidYearMonth = errors.New("invalid year-month")

type (
	ReportPeriod struct {
		YearMonth   string `json:"yearMonth"`
		StartDate   Date   `json:"startDate"`
		EndDate     Date   `json:"endDate"`
		DaysInMonth int    `json:"daysInMonth"`
	}

	ReportSummary struct {
		TotalAmount          Money `json:"totalAmount"`
		TotalCount           int   `json:"totalCount"`
		AverageAmount        Money `json:"averageAmount"`
		AverageDailySpending Money `json:"averageDailySpending"`
		DaysWithExpenses     int   `json:"daysWithExpenses"`
	}

	// ReportExpense is the flattened expense row used inside reports.
	ReportExpense struct {
		ID          int64  `json:"id"`
		Amount      Money  `json:"amount"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Date        Date   `json:"date"`
	}

	MonthlyReport struct {
		Period            ReportPeriod       `json:"period"`
		Summary           ReportSummary      `json:"summary"`
		CategoryBreakdown map[string]float64 `json:"categoryBreakdown"`
		DailyBreakdown    map[string]float64 `json:"dailyBreakdown"`
		TopExpenses       []ReportExpense    `json:"topExpenses"`
		AllExpenses       []ReportExpense    `json:"allExpenses"`
	}

	// DayAmount is one entry of the daily breakdown, in calendar order.
	DayAmount struct {
		Date   string
		Amount Money
	}

	// MonthOption is an entry of the report period picker.
	MonthOption struct {
		Value string // YYYY-MM
		Label string // January 2025
	}
)

// ParseYearMonth validates a YYYY-MM value.
func ParseYearMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidYearMonth
	}
	return t, nil
}

// LastMonths returns n picker entries ending with the month of now, newest first.
func LastMonths(now time.Time, n int) []MonthOption {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]MonthOption, 0, n)
	for i := 0; i < n; i++ {
		t := first.AddDate(0, -i, 0)
		out = append(out, MonthOption{Value: t.Format("2006-01"), Label: t.Format("January 2006")})
	}
	return out
}

// Categories returns the report's category breakdown sorted by amount.
func (r MonthlyReport) Categories() []CategoryAmount {
	return CategoryBreakdown(r.CategoryBreakdown)
}

// Days returns the daily breakdown sorted by date.
func (r MonthlyReport) Days() []DayAmount {
	out := make([]DayAmount, 0, len(r.DailyBreakdown))
	for d, v := range r.DailyBreakdown {
		out = append(out, DayAmount{Date: d, Amount: MoneyFromFloat(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
