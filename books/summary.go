package books

import (
	"context"
	"sort"

	"golang.org/x/exp/maps"
)

// Summary aggregates expenses and sales over a date range.
type Summary struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`

	TotalExpenses float64 `json:"totalExpenses"`
	TotalSales    float64 `json:"totalSales"`
	NetIncome     float64 `json:"netIncome"`

	ExpenseCount int `json:"expenseCount"`
	SaleCount    int `json:"saleCount"`

	AverageExpense float64 `json:"averageExpense"`
	AverageSale    float64 `json:"averageSale"`

	ExpensesByCategory map[string]float64 `json:"expensesByCategory"`
	SalesByCategory    map[string]float64 `json:"salesByCategory"`
	SalesByPayment     map[string]float64 `json:"salesByPayment"`
	ExpensesByPayment  map[string]float64 `json:"expensesByPayment"`

	Daily []DailyTotal `json:"daily"`

	TopExpenseCategories []CategoryTotal `json:"topExpenseCategories"`
}

type DailyTotal struct {
	Date     string  `json:"date"`
	Expenses float64 `json:"expenses"`
	Sales    float64 `json:"sales"`
	Net      float64 `json:"net"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Summarize folds every expense and sale in [startDate, endDate] into a
// Summary. Both bounds are inclusive.
func (s *Service) Summarize(ctx context.Context, startDate, endDate string) (*Summary, error) {
	f := Filter{StartDate: startDate, EndDate: endDate}
	expenses, err := s.ListExpenses(ctx, f)
	if err != nil {
		return nil, err
	}
	sales, err := s.ListSales(ctx, f)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		StartDate:          startDate,
		EndDate:            endDate,
		ExpenseCount:       len(expenses),
		SaleCount:          len(sales),
		ExpensesByCategory: map[string]float64{},
		SalesByCategory:    map[string]float64{},
		SalesByPayment:     map[string]float64{},
		ExpensesByPayment:  map[string]float64{},
	}

	daily := map[string]*DailyTotal{}
	day := func(date string) *DailyTotal {
		d, ok := daily[date]
		if !ok {
			d = &DailyTotal{Date: date}
			daily[date] = d
		}
		return d
	}

	for _, e := range expenses {
		sum.TotalExpenses += e.Amount
		sum.ExpensesByCategory[e.Category] += e.Amount
		sum.ExpensesByPayment[e.PaymentMethod] += e.Amount
		day(e.Date).Expenses += e.Amount
	}
	for _, e := range sales {
		sum.TotalSales += e.TotalAmount
		sum.SalesByCategory[e.Category] += e.TotalAmount
		sum.SalesByPayment[e.PaymentMethod] += e.TotalAmount
		day(e.Date).Sales += e.TotalAmount
	}

	sum.NetIncome = sum.TotalSales - sum.TotalExpenses
	if sum.ExpenseCount > 0 {
		sum.AverageExpense = sum.TotalExpenses / float64(sum.ExpenseCount)
	}
	if sum.SaleCount > 0 {
		sum.AverageSale = sum.TotalSales / float64(sum.SaleCount)
	}

	dates := maps.Keys(daily)
	sort.Strings(dates)
	sum.Daily = make([]DailyTotal, 0, len(dates))
	for _, date := range dates {
		d := daily[date]
		d.Net = d.Sales - d.Expenses
		sum.Daily = append(sum.Daily, *d)
	}

	sum.TopExpenseCategories = topCategories(sum.ExpensesByCategory, 5)
	return sum, nil
}

// topCategories picks the n largest entries, ties broken by name so the
// result is stable.
func topCategories(byCategory map[string]float64, n int) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(byCategory))
	for category, amount := range byCategory {
		out = append(out, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
