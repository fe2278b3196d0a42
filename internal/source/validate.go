package source

import (
	"fmt"
	"math"
	"strings"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/utils"
)

// Result is the outcome of typing one raw record: either Record is usable
// or Err says why it was dropped.
type Result[T any] struct {
	Record T
	Err    *ValidationError
}

// OK reports whether the record passed validation.
func (r Result[T]) OK() bool { return r.Err == nil }

// Partition splits results into valid records and validation errors,
// preserving input order in both.
func Partition[T any](results []Result[T]) ([]T, []*ValidationError) {
	valid := make([]T, 0, len(results))
	var invalid []*ValidationError
	for _, r := range results {
		if r.OK() {
			valid = append(valid, r.Record)
		} else {
			invalid = append(invalid, r.Err)
		}
	}
	return valid, invalid
}

var validTiers = map[string]bool{"standard": true, "premium": true, "vip": true}

// Validator converts raw records into typed records using the configured
// business rules.
type Validator struct {
	minAmount      float64
	maxAmount      float64
	currencies     map[string]bool
	paymentMethods map[string]bool
	statuses       map[string]bool
}

// NewValidator builds a Validator from business rules.
func NewValidator(rules config.BusinessRulesConfig) *Validator {
	return &Validator{
		minAmount:      rules.MinAmount,
		maxAmount:      rules.MaxAmount,
		currencies:     toSet(rules.ValidCurrencies),
		paymentMethods: toSet(rules.ValidPaymentMethods),
		statuses:       toSet(rules.ValidStatuses),
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Transactions types each raw transaction.
func (v *Validator) Transactions(raw []model.RawRecord) []Result[model.Transaction] {
	out := make([]Result[model.Transaction], len(raw))
	for i, rec := range raw {
		t, err := v.transaction(rec)
		out[i] = Result[model.Transaction]{Record: t, Err: err}
	}
	return out
}

// Users types each raw user.
func (v *Validator) Users(raw []model.RawRecord) []Result[model.User] {
	out := make([]Result[model.User], len(raw))
	for i, rec := range raw {
		u, err := v.user(rec)
		out[i] = Result[model.User]{Record: u, Err: err}
	}
	return out
}

// Products types each raw product.
func (v *Validator) Products(raw []model.RawRecord) []Result[model.Product] {
	out := make([]Result[model.Product], len(raw))
	for i, rec := range raw {
		p, err := v.product(rec)
		out[i] = Result[model.Product]{Record: p, Err: err}
	}
	return out
}

func (v *Validator) transaction(rec model.RawRecord) (model.Transaction, *ValidationError) {
	id, _ := utils.AsString(rec["transaction_id"])
	fail := func(field, reason string) (model.Transaction, *ValidationError) {
		return model.Transaction{}, &ValidationError{Kind: model.KindTransactions, RecordID: id, Field: field, Reason: reason}
	}

	if field, ok := missing(rec, "transaction_id", "user_id", "product_id", "amount", "currency", "timestamp"); !ok {
		return fail(field, "is required")
	}
	amount, ok := utils.Numeric(rec["amount"])
	if !ok || math.IsNaN(amount) {
		return fail("amount", "is not numeric")
	}
	if amount < v.minAmount || amount > v.maxAmount {
		return fail("amount", fmt.Sprintf("%v outside [%v, %v]", amount, v.minAmount, v.maxAmount))
	}
	currency, _ := rec["currency"].(string)
	if !v.currencies[currency] {
		return fail("currency", fmt.Sprintf("%q not allowed", currency))
	}
	method, _ := rec["payment_method"].(string)
	if !v.paymentMethods[method] {
		return fail("payment_method", fmt.Sprintf("%q not allowed", method))
	}
	status, _ := rec["status"].(string)
	if !v.statuses[status] {
		return fail("status", fmt.Sprintf("%q not allowed", status))
	}
	ts, _ := rec["timestamp"].(string)
	if _, err := model.ParseTimestamp(ts); err != nil {
		return fail("timestamp", "is not ISO-8601")
	}

	userID, _ := utils.AsString(rec["user_id"])
	productID, _ := utils.AsString(rec["product_id"])
	return model.Transaction{
		TransactionID: id,
		UserID:        userID,
		ProductID:     productID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		Status:        status,
		Timestamp:     ts,
	}, nil
}

func (v *Validator) user(rec model.RawRecord) (model.User, *ValidationError) {
	id, _ := utils.AsString(rec["user_id"])
	fail := func(field, reason string) (model.User, *ValidationError) {
		return model.User{}, &ValidationError{Kind: model.KindUsers, RecordID: id, Field: field, Reason: reason}
	}

	if field, ok := missing(rec, "user_id", "email", "country"); !ok {
		return fail(field, "is required")
	}
	email, _ := rec["email"].(string)
	if !strings.Contains(email, "@") {
		return fail("email", "has no @")
	}
	country, _ := rec["country"].(string)
	if len(country) != 2 {
		return fail("country", fmt.Sprintf("%q is not a 2-letter code", country))
	}
	tier := "standard"
	if raw, present := rec["customer_tier"]; present && raw != nil {
		t, _ := raw.(string)
		if !validTiers[t] {
			return fail("customer_tier", fmt.Sprintf("%q not allowed", t))
		}
		tier = t
	}
	active := true
	if b, ok := utils.Truthy(rec["is_active"]); ok {
		active = b
	}

	return model.User{
		UserID:           id,
		Email:            email,
		Country:          country,
		AgeGroup:         optionalString(rec["age_group"]),
		CustomerTier:     tier,
		RegistrationDate: optionalString(rec["registration_date"]),
		IsActive:         active,
	}, nil
}

func (v *Validator) product(rec model.RawRecord) (model.Product, *ValidationError) {
	id, _ := utils.AsString(rec["product_id"])
	fail := func(field, reason string) (model.Product, *ValidationError) {
		return model.Product{}, &ValidationError{Kind: model.KindProducts, RecordID: id, Field: field, Reason: reason}
	}

	if field, ok := missing(rec, "product_id", "name", "price"); !ok {
		return fail(field, "is required")
	}
	price, ok := utils.Numeric(rec["price"])
	if !ok || math.IsNaN(price) {
		return fail("price", "is not numeric")
	}
	if price <= 0 {
		return fail("price", "must be positive")
	}
	inventory := 0
	if raw, present := rec["inventory_count"]; present && raw != nil {
		n, ok := utils.Numeric(raw)
		if !ok {
			return fail("inventory_count", "is not numeric")
		}
		if n < 0 {
			return fail("inventory_count", "must not be negative")
		}
		inventory = int(n)
	}
	currency := "USD"
	if c, ok := rec["currency"].(string); ok && c != "" {
		currency = c
	}
	name, _ := utils.AsString(rec["name"])

	return model.Product{
		ProductID:      id,
		Name:           name,
		Category:       optionalString(rec["category"]),
		Price:          price,
		Currency:       currency,
		InventoryCount: inventory,
		SupplierID:     optionalString(rec["supplier_id"]),
	}, nil
}

// missing returns the first field that is absent or null.
func missing(rec model.RawRecord, fields ...string) (string, bool) {
	for _, f := range fields {
		if v, ok := rec[f]; !ok || v == nil {
			return f, false
		}
	}
	return "", true
}

func optionalString(v interface{}) *string {
	s, ok := utils.AsString(v)
	if !ok {
		return nil
	}
	return &s
}
