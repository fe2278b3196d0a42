package model

import "time"

// DailySales is one row of the daily sales summary, keyed by date.
type DailySales struct {
	Date                   string             `json:"date"`
	TotalRevenue           float64            `json:"total_revenue"`
	TotalTransactions      int                `json:"total_transactions"`
	UniqueCustomers        int                `json:"unique_customers"`
	AverageOrderValue      float64            `json:"average_order_value"`
	RevenueByCurrency      map[string]float64 `json:"revenue_by_currency"`
	RevenueByPaymentMethod map[string]float64 `json:"revenue_by_payment_method"`
}

// Row flattens the summary into sink columns.
func (d DailySales) Row() map[string]interface{} {
	return map[string]interface{}{
		"date":                      d.Date,
		"total_revenue":             d.TotalRevenue,
		"total_transactions":        d.TotalTransactions,
		"unique_customers":          d.UniqueCustomers,
		"average_order_value":       d.AverageOrderValue,
		"revenue_by_currency":       d.RevenueByCurrency,
		"revenue_by_payment_method": d.RevenueByPaymentMethod,
	}
}

// UserAnalytics is one row of per-customer analytics, keyed by user id.
type UserAnalytics struct {
	UserID                 string  `json:"user_id"`
	Email                  *string `json:"email"`
	Country                *string `json:"country"`
	CustomerTier           string  `json:"customer_tier"`
	TotalSpent             float64 `json:"total_spent"`
	TotalOrders            int     `json:"total_orders"`
	AverageOrderValue      float64 `json:"average_order_value"`
	LastOrderDate          *string `json:"last_order_date"`
	PreferredPaymentMethod *string `json:"preferred_payment_method"`
	PreferredCategory      *string `json:"preferred_category"`
	IsHighValueCustomer    bool    `json:"is_high_value_customer"`
}

// Row flattens the analytics into sink columns.
func (u UserAnalytics) Row() map[string]interface{} {
	return map[string]interface{}{
		"user_id":                  u.UserID,
		"email":                    u.Email,
		"country":                  u.Country,
		"customer_tier":            u.CustomerTier,
		"total_spent":              u.TotalSpent,
		"total_orders":             u.TotalOrders,
		"average_order_value":      u.AverageOrderValue,
		"last_order_date":          u.LastOrderDate,
		"preferred_payment_method": u.PreferredPaymentMethod,
		"preferred_category":       u.PreferredCategory,
		"is_high_value_customer":   u.IsHighValueCustomer,
	}
}

// ProductPerformance is one row of per-product performance, keyed by product id.
type ProductPerformance struct {
	ProductID         string  `json:"product_id"`
	ProductName       *string `json:"product_name"`
	Category          *string `json:"category"`
	BasePrice         float64 `json:"base_price"`
	TotalRevenue      float64 `json:"total_revenue"`
	TotalOrders       int     `json:"total_orders"`
	UniqueCustomers   int     `json:"unique_customers"`
	AverageOrderValue float64 `json:"average_order_value"`
	InventoryCount    int     `json:"inventory_count"`
	PerformanceTier   string  `json:"performance_tier"`
}

// Row flattens the performance row into sink columns.
func (p ProductPerformance) Row() map[string]interface{} {
	return map[string]interface{}{
		"product_id":          p.ProductID,
		"product_name":        p.ProductName,
		"category":            p.Category,
		"base_price":          p.BasePrice,
		"total_revenue":       p.TotalRevenue,
		"total_orders":        p.TotalOrders,
		"unique_customers":    p.UniqueCustomers,
		"average_order_value": p.AverageOrderValue,
		"inventory_count":     p.InventoryCount,
		"performance_tier":    p.PerformanceTier,
	}
}

// FinancialReport is the single rolling "today" report row.
type FinancialReport struct {
	ReportDate             string             `json:"report_date"`
	ReportType             string             `json:"report_type"`
	PeriodStart            string             `json:"period_start"`
	PeriodEnd              string             `json:"period_end"`
	TotalRevenue           float64            `json:"total_revenue"`
	TotalTransactions      int                `json:"total_transactions"`
	AverageOrderValue      float64            `json:"average_order_value"`
	RevenueByCurrency      map[string]float64 `json:"revenue_by_currency"`
	RevenueByPaymentMethod map[string]float64 `json:"revenue_by_payment_method"`
}

// Row flattens the report into sink columns.
func (f FinancialReport) Row() map[string]interface{} {
	return map[string]interface{}{
		"report_date":               f.ReportDate,
		"report_type":               f.ReportType,
		"period_start":              f.PeriodStart,
		"period_end":                f.PeriodEnd,
		"total_revenue":             f.TotalRevenue,
		"total_transactions":        f.TotalTransactions,
		"average_order_value":       f.AverageOrderValue,
		"revenue_by_currency":       f.RevenueByCurrency,
		"revenue_by_payment_method": f.RevenueByPaymentMethod,
	}
}

// AnalyticsTables holds the four summary tables built from one run.
type AnalyticsTables struct {
	DailySales         []DailySales         `json:"daily_sales_summary"`
	UserAnalytics      []UserAnalytics      `json:"user_analytics"`
	ProductPerformance []ProductPerformance `json:"product_performance"`
	FinancialReports   []FinancialReport    `json:"financial_reports"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "json", "csv"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
