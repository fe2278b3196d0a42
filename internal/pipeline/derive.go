package pipeline

import (
	"math"
	"time"

	"ecommerce-analytics-pipeline/internal/model"
)

// exchangeRates are units of currency per USD.
var exchangeRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.85,
	"GBP": 0.73,
	"CAD": 1.25,
}

// Inventory status and price tier values.
const (
	InventoryOutOfStock = "out_of_stock"
	InventoryLowStock   = "low_stock"
	InventoryInStock    = "in_stock"

	PriceTierBudget   = "budget"
	PriceTierMidRange = "mid_range"
	PriceTierPremium  = "premium"
)

// ExchangeRate returns the rate for currency. Unknown currencies use 1.0.
func ExchangeRate(currency string) float64 {
	if r, ok := exchangeRates[currency]; ok {
		return r
	}
	return 1.0
}

// ToUSD converts amount in currency to USD.
func ToUSD(amount float64, currency string) float64 {
	return amount / ExchangeRate(currency)
}

// TimestampFields splits ts into date, hour and weekday name. All three are
// nil when ts does not parse.
func TimestampFields(ts string) (date *string, hour *int, weekday *string) {
	t, err := model.ParseTimestamp(ts)
	if err != nil {
		return nil, nil, nil
	}
	d := t.Format("2006-01-02")
	h := t.Hour()
	w := t.Weekday().String()
	return &d, &h, &w
}

// ProfitMargin estimates (amountUSD - basePrice) / amountUSD. It is 0 when
// the base price is unknown or not positive, or when amountUSD is 0.
func ProfitMargin(amountUSD float64, basePrice *float64) float64 {
	if basePrice == nil || *basePrice <= 0 || amountUSD == 0 {
		return 0.0
	}
	return (amountUSD - *basePrice) / amountUSD
}

// InventoryStatus buckets a stock count.
func InventoryStatus(count int) string {
	switch {
	case count <= 0:
		return InventoryOutOfStock
	case count < 10:
		return InventoryLowStock
	default:
		return InventoryInStock
	}
}

// PriceTier buckets a USD price.
func PriceTier(priceUSD float64) string {
	switch {
	case priceUSD < 50:
		return PriceTierBudget
	case priceUSD < 200:
		return PriceTierMidRange
	default:
		return PriceTierPremium
	}
}

// Deriver computes derived fields. now is the clock used for lifetime days.
type Deriver struct {
	now func() time.Time
}

// NewDeriver returns a Deriver; a nil clock means time.Now.
func NewDeriver(now func() time.Time) *Deriver {
	if now == nil {
		now = time.Now
	}
	return &Deriver{now: now}
}

// Transaction fills the currency, timestamp and margin fields of t.
func (d *Deriver) Transaction(t *model.EnrichedTransaction) {
	t.AmountUSD = ToUSD(t.Amount, t.Currency)
	t.IsHighValue = IsHighValue(t.AmountUSD)
	t.IsInternational = t.Currency != "USD"
	t.TransactionDate, t.TransactionHour, t.TransactionDayOfWeek = TimestampFields(t.Timestamp)
	t.ProfitMarginEstimate = ProfitMargin(t.AmountUSD, t.ProductBasePrice)
}

// User derives the customer lifetime.
func (d *Deriver) User(u model.User) model.EnrichedUser {
	return model.EnrichedUser{
		User:                 u,
		CustomerLifetimeDays: d.LifetimeDays(u.RegistrationDate),
	}
}

// Product derives the USD price, inventory status and price tier.
func (d *Deriver) Product(p model.Product) model.EnrichedProduct {
	usd := ToUSD(p.Price, p.Currency)
	return model.EnrichedProduct{
		Product:         p,
		PriceUSD:        usd,
		InventoryStatus: InventoryStatus(p.InventoryCount),
		PriceTier:       PriceTier(usd),
	}
}

// LifetimeDays returns whole days since registration, or 0 when the date is
// missing or unparsable.
func (d *Deriver) LifetimeDays(registration *string) int {
	if registration == nil {
		return 0
	}
	reg, err := model.ParseTimestamp(*registration)
	if err != nil {
		return 0
	}
	return int(math.Floor(d.now().Sub(reg).Hours() / 24))
}
