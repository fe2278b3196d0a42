package model

// EnrichedTransaction is a Transaction plus a point-in-time copy of the
// referenced user and product fields, the rule classifications and the
// derived fields. Snapshot fields are nil when the reference was missing.
type EnrichedTransaction struct {
	Transaction

	AmountUSD       float64 `json:"amount_usd"`
	IsHighValue     bool    `json:"is_high_value"`
	IsInternational bool    `json:"is_international"`

	UserCountry          *string `json:"user_country"`
	UserTier             string  `json:"user_tier"`
	UserAgeGroup         *string `json:"user_age_group"`
	UserRegistrationDate *string `json:"user_registration_date"`

	ProductName      *string  `json:"product_name"`
	ProductCategory  *string  `json:"product_category"`
	ProductSupplier  *string  `json:"product_supplier"`
	ProductBasePrice *float64 `json:"product_base_price"`

	PaymentMethodRisk  string `json:"payment_method_risk"`
	TransactionRisk    string `json:"transaction_risk"`
	ProcessingPriority string `json:"processing_priority"`

	TransactionDate      *string `json:"transaction_date"`
	TransactionHour      *int    `json:"transaction_hour"`
	TransactionDayOfWeek *string `json:"transaction_day_of_week"`

	ProfitMarginEstimate float64 `json:"profit_margin_estimate"`
}

// Row flattens the transaction into sink columns.
func (t EnrichedTransaction) Row() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":          t.TransactionID,
		"user_id":                 t.UserID,
		"product_id":              t.ProductID,
		"amount":                  t.Amount,
		"currency":                t.Currency,
		"payment_method":          t.PaymentMethod,
		"status":                  t.Status,
		"transaction_timestamp":   t.Timestamp,
		"amount_usd":              t.AmountUSD,
		"is_high_value":           t.IsHighValue,
		"is_international":        t.IsInternational,
		"user_country":            t.UserCountry,
		"user_tier":               t.UserTier,
		"product_category":        t.ProductCategory,
		"product_base_price":      t.ProductBasePrice,
		"payment_method_risk":     t.PaymentMethodRisk,
		"transaction_risk":        t.TransactionRisk,
		"processing_priority":     t.ProcessingPriority,
		"transaction_date":        t.TransactionDate,
		"transaction_hour":        t.TransactionHour,
		"transaction_day_of_week": t.TransactionDayOfWeek,
		"profit_margin_estimate":  t.ProfitMarginEstimate,
	}
}

// EnrichedUser is a User with derived fields.
type EnrichedUser struct {
	User
	CustomerLifetimeDays int `json:"customer_lifetime_days"`
}

// Row flattens the user into sink columns.
func (u EnrichedUser) Row() map[string]interface{} {
	return map[string]interface{}{
		"user_id":                u.UserID,
		"email":                  u.Email,
		"country":                u.Country,
		"age_group":              u.AgeGroup,
		"customer_tier":          u.CustomerTier,
		"registration_date":      u.RegistrationDate,
		"is_active":              u.IsActive,
		"customer_lifetime_days": u.CustomerLifetimeDays,
	}
}

// EnrichedProduct is a Product with derived fields.
type EnrichedProduct struct {
	Product
	PriceUSD        float64 `json:"price_usd"`
	InventoryStatus string  `json:"inventory_status"`
	PriceTier       string  `json:"price_tier"`
}

// Row flattens the product into sink columns.
func (p EnrichedProduct) Row() map[string]interface{} {
	return map[string]interface{}{
		"product_id":       p.ProductID,
		"name":             p.Name,
		"category":         p.Category,
		"price":            p.Price,
		"currency":         p.Currency,
		"inventory_count":  p.InventoryCount,
		"supplier_id":      p.SupplierID,
		"price_usd":        p.PriceUSD,
		"inventory_status": p.InventoryStatus,
		"price_tier":       p.PriceTier,
	}
}
