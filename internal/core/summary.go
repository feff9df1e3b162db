package core

import (
	"sort"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthAmount is one point of the monthly series shown on the dashboard.
type MonthAmount struct {
	Key    string // YYYY-MM
	Label  string // Jan, Feb, ...
	Amount Money
}

// Overview is what the dashboard renders.
type Overview struct {
	Year       int
	Total      Money
	ByCategory []CategoryAmount
	Months     []MonthAmount
}

// CategoryBreakdown converts an API aggregate into a slice sorted by
// descending amount, then name.
func CategoryBreakdown(totals map[string]float64) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(totals))
	for name, v := range totals {
		out = append(out, CategoryAmount{Name: name, Amount: MoneyFromFloat(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Total sums a category breakdown.
func Total(items []CategoryAmount) Money {
	var m Money
	for _, it := range items {
		m = m.Add(it.Amount)
	}
	return m
}

// YearSeries lays a YYYY-MM keyed aggregate onto the twelve months of year.
// Months without data are zero; keys outside year are ignored.
func YearSeries(year int, monthly map[string]float64) []MonthAmount {
	out := make([]MonthAmount, 12)
	for i := range out {
		t := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		key := t.Format("2006-01")
		out[i] = MonthAmount{Key: key, Label: t.Format("Jan"), Amount: MoneyFromFloat(monthly[key])}
	}
	return out
}

// BuildOverview assembles the dashboard data for the year of now.
func BuildOverview(now time.Time, byCategory, monthly map[string]float64) Overview {
	cats := CategoryBreakdown(byCategory)
	return Overview{
		Year:       now.Year(),
		Total:      Total(cats),
		ByCategory: cats,
		Months:     YearSeries(now.Year(), monthly),
	}
}

// Percent returns part as a whole percentage of total, clamped to [0,100].
// Used for the width of the proportional bars.
func Percent(part, total Money) int {
	if total.Cents <= 0 || part.Cents <= 0 {
		return 0
	}
	p := int(part.Cents * 100 / total.Cents)
	if p > 100 {
		p = 100
	}
	if p == 0 {
		p = 1
	}
	return p
}

// MaxMonth returns the largest monthly amount, used to scale the bars.
func MaxMonth(months []MonthAmount) Money {
	var max Money
	for _, m := range months {
		if m.Amount.Cents > max.Cents {
			max = m.Amount
		}
	}
	return max
}
