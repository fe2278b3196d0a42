package pipeline

import "ecommerce-analytics-pipeline/internal/model"

// DefaultCustomerTier is assigned when a transaction's user is unknown or
// carries no tier.
const DefaultCustomerTier = "standard"

// Lookups are the id-keyed user and product maps for one run. They are built
// once and only read afterwards, so concurrent readers are safe.
type Lookups struct {
	Users    map[string]model.User
	Products map[string]model.Product
}

// NewLookups indexes users and products by id. When an id repeats, the later
// record wins.
func NewLookups(users []model.User, products []model.Product) Lookups {
	l := Lookups{
		Users:    make(map[string]model.User, len(users)),
		Products: make(map[string]model.Product, len(products)),
	}
	for _, u := range users {
		l.Users[u.UserID] = u
	}
	for _, p := range products {
		l.Products[p.ProductID] = p
	}
	return l
}

// JoinStats counts foreign keys that had no match.
type JoinStats struct {
	UserMisses    int `json:"user_misses"`
	ProductMisses int `json:"product_misses"`
}

// Add accumulates other into s.
func (s *JoinStats) Add(other JoinStats) {
	s.UserMisses += other.UserMisses
	s.ProductMisses += other.ProductMisses
}

// Joiner copies user and product snapshot fields onto transactions.
type Joiner struct {
	lookups Lookups
}

// NewJoiner returns a Joiner over prebuilt lookups.
func NewJoiner(lookups Lookups) *Joiner {
	return &Joiner{lookups: lookups}
}

// Join enriches every transaction. A missing user or product leaves the
// matching snapshot fields nil and is counted, never rejected.
func (j *Joiner) Join(txs []model.Transaction) ([]model.EnrichedTransaction, JoinStats) {
	out := make([]model.EnrichedTransaction, len(txs))
	var stats JoinStats
	for i, tx := range txs {
		out[i] = j.Enrich(tx, &stats)
	}
	return out, stats
}

// Enrich builds the enriched form of a single transaction.
func (j *Joiner) Enrich(tx model.Transaction, stats *JoinStats) model.EnrichedTransaction {
	et := model.EnrichedTransaction{
		Transaction: tx,
		UserTier:    DefaultCustomerTier,
	}

	if u, ok := j.lookups.Users[tx.UserID]; ok {
		et.UserCountry = stringPtr(u.Country)
		if u.CustomerTier != "" {
			et.UserTier = u.CustomerTier
		}
		et.UserAgeGroup = copyString(u.AgeGroup)
		et.UserRegistrationDate = copyString(u.RegistrationDate)
	} else if stats != nil {
		stats.UserMisses++
	}

	if p, ok := j.lookups.Products[tx.ProductID]; ok {
		et.ProductName = stringPtr(p.Name)
		et.ProductCategory = copyString(p.Category)
		et.ProductSupplier = copyString(p.SupplierID)
		price := p.Price
		et.ProductBasePrice = &price
	} else if stats != nil {
		stats.ProductMisses++
	}

	return et
}

func stringPtr(s string) *string {
	return &s
}

// copyString detaches a snapshot from the source record.
func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
