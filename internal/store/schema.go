package store

import (
	"fmt"
	"strings"
)

// ColumnType is a portable column type mapped per dialect.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeReal
	TypeInteger
	TypeBool
	TypeJSON
	TypeTimestamp
)

// Column is one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes a sink table. PrimaryKey doubles as the conflict target
// for insert-or-ignore.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// Table names.
const (
	TableTransactions       = "transactions"
	TableUsers              = "users"
	TableProducts           = "products"
	TableDailySales         = "daily_sales_summary"
	TableUserAnalytics      = "user_analytics"
	TableProductPerformance = "product_performance"
	TableFinancialReports   = "financial_reports"
	TableQualityMetrics     = "data_quality_metrics"
)

// Tables is the registry of every table a sink may write.
var Tables = map[string]Table{
	TableTransactions: {
		Name: TableTransactions,
		Columns: []Column{
			{"transaction_id", TypeText},
			{"user_id", TypeText},
			{"product_id", TypeText},
			{"amount", TypeReal},
			{"currency", TypeText},
			{"payment_method", TypeText},
			{"status", TypeText},
			{"transaction_timestamp", TypeText},
			{"amount_usd", TypeReal},
			{"is_high_value", TypeBool},
			{"is_international", TypeBool},
			{"user_country", TypeText},
			{"user_tier", TypeText},
			{"product_category", TypeText},
			{"product_base_price", TypeReal},
			{"payment_method_risk", TypeText},
			{"transaction_risk", TypeText},
			{"processing_priority", TypeText},
			{"transaction_date", TypeText},
			{"transaction_hour", TypeInteger},
			{"transaction_day_of_week", TypeText},
			{"profit_margin_estimate", TypeReal},
		},
		PrimaryKey: []string{"transaction_id"},
	},
	TableUsers: {
		Name: TableUsers,
		Columns: []Column{
			{"user_id", TypeText},
			{"email", TypeText},
			{"country", TypeText},
			{"age_group", TypeText},
			{"customer_tier", TypeText},
			{"registration_date", TypeText},
			{"is_active", TypeBool},
			{"customer_lifetime_days", TypeInteger},
		},
		PrimaryKey: []string{"user_id"},
	},
	TableProducts: {
		Name: TableProducts,
		Columns: []Column{
			{"product_id", TypeText},
			{"name", TypeText},
			{"category", TypeText},
			{"price", TypeReal},
			{"currency", TypeText},
			{"inventory_count", TypeInteger},
			{"supplier_id", TypeText},
			{"price_usd", TypeReal},
			{"inventory_status", TypeText},
			{"price_tier", TypeText},
		},
		PrimaryKey: []string{"product_id"},
	},
	TableDailySales: {
		Name: TableDailySales,
		Columns: []Column{
			{"date", TypeText},
			{"total_revenue", TypeReal},
			{"total_transactions", TypeInteger},
			{"unique_customers", TypeInteger},
			{"average_order_value", TypeReal},
			{"revenue_by_currency", TypeJSON},
			{"revenue_by_payment_method", TypeJSON},
		},
		PrimaryKey: []string{"date"},
	},
	TableUserAnalytics: {
		Name: TableUserAnalytics,
		Columns: []Column{
			{"user_id", TypeText},
			{"email", TypeText},
			{"country", TypeText},
			{"customer_tier", TypeText},
			{"total_spent", TypeReal},
			{"total_orders", TypeInteger},
			{"average_order_value", TypeReal},
			{"last_order_date", TypeText},
			{"preferred_payment_method", TypeText},
			{"preferred_category", TypeText},
			{"is_high_value_customer", TypeBool},
		},
		PrimaryKey: []string{"user_id"},
	},
	TableProductPerformance: {
		Name: TableProductPerformance,
		Columns: []Column{
			{"product_id", TypeText},
			{"product_name", TypeText},
			{"category", TypeText},
			{"base_price", TypeReal},
			{"total_revenue", TypeReal},
			{"total_orders", TypeInteger},
			{"unique_customers", TypeInteger},
			{"average_order_value", TypeReal},
			{"inventory_count", TypeInteger},
			{"performance_tier", TypeText},
		},
		PrimaryKey: []string{"product_id"},
	},
	TableFinancialReports: {
		Name: TableFinancialReports,
		Columns: []Column{
			{"report_date", TypeText},
			{"report_type", TypeText},
			{"period_start", TypeText},
			{"period_end", TypeText},
			{"total_revenue", TypeReal},
			{"total_transactions", TypeInteger},
			{"average_order_value", TypeReal},
			{"revenue_by_currency", TypeJSON},
			{"revenue_by_payment_method", TypeJSON},
		},
		PrimaryKey: []string{"report_date", "report_type"},
	},
	TableQualityMetrics: {
		Name: TableQualityMetrics,
		Columns: []Column{
			{"run_id", TypeText},
			{"measured_at", TypeTimestamp},
			{"overall_score", TypeReal},
			{"completeness", TypeReal},
			{"accuracy", TypeReal},
			{"consistency", TypeReal},
			{"timeliness", TypeReal},
			{"business_rules", TypeReal},
			{"passed_checks", TypeInteger},
			{"total_checks", TypeInteger},
		},
		PrimaryKey: []string{"run_id"},
	},
}

// TableNames lists the registry in creation order.
var TableNames = []string{
	TableTransactions, TableUsers, TableProducts,
	TableDailySales, TableUserAnalytics, TableProductPerformance, TableFinancialReports,
	TableQualityMetrics,
}

func lookupTable(name string) (Table, error) {
	t, ok := Tables[name]
	if !ok {
		return Table{}, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func (t Table) hasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// createSQL renders CREATE TABLE IF NOT EXISTS for d.
func (t Table) createSQL(d dialect) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, quoteIdentifier(c.Name)+" "+d.types[c.Type])
	}
	defs = append(defs, "PRIMARY KEY ("+quoteList(t.PrimaryKey)+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdentifier(t.Name), strings.Join(defs, ",\n\t"))
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}
