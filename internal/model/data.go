package model

// RawRecord is a schema-agnostic record as read from a source, before typing.
type RawRecord map[string]interface{}

// RecordKind identifies which entity a batch of records holds.
type RecordKind string

const (
	KindTransactions RecordKind = "transactions"
	KindUsers        RecordKind = "users"
	KindProducts     RecordKind = "products"
)

// AllKinds lists the kinds in extraction order.
var AllKinds = []RecordKind{KindTransactions, KindUsers, KindProducts}

// Transaction is a validated purchase record.
type Transaction struct {
	TransactionID string  `json:"transaction_id"`
	UserID        string  `json:"user_id"`
	ProductID     string  `json:"product_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
}

// User is a validated customer record.
type User struct {
	UserID           string  `json:"user_id"`
	Email            string  `json:"email"`
	Country          string  `json:"country"`
	AgeGroup         *string `json:"age_group"`
	CustomerTier     string  `json:"customer_tier"`
	RegistrationDate *string `json:"registration_date"`
	IsActive         bool    `json:"is_active"`
}

// Product is a validated catalog record.
type Product struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Category       *string `json:"category"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	InventoryCount int     `json:"inventory_count"`
	SupplierID     *string `json:"supplier_id"`
}
