package pipeline

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/logger"
)

// Aggregation thresholds.
const (
	HighValueCustomerThreshold = 1000.0
	ProductTierHighRevenue     = 5000.0
	ProductTierMediumRevenue   = 1000.0

	ReportTypeDaily = "daily"
)

// Product performance tiers.
const (
	PerformanceHigh   = "high"
	PerformanceMedium = "medium"
	PerformanceLow    = "low"
)

// Aggregator builds the four summary tables from enriched transactions.
// Daily and product reductions are fanned out over workers chunks and
// merged in chunk order, so results do not depend on scheduling.
type Aggregator struct {
	workers int
	now     func() time.Time
	log     *logger.Logger
}

// NewAggregator returns an Aggregator. now supplies the financial report date.
func NewAggregator(workers int, now func() time.Time, log *logger.Logger) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Aggregator{workers: workers, now: now, log: log}
}

// Build runs the four reductions concurrently. users and products supply the
// descriptive columns of the user and product tables.
func (a *Aggregator) Build(ctx context.Context, txs []model.EnrichedTransaction, users []model.EnrichedUser, products []model.EnrichedProduct) (*model.AnalyticsTables, error) {
	tables := &model.AnalyticsTables{
		DailySales:         []model.DailySales{},
		UserAnalytics:      []model.UserAnalytics{},
		ProductPerformance: []model.ProductPerformance{},
		FinancialReports:   []model.FinancialReport{},
	}
	if len(txs) == 0 {
		return tables, nil
	}

	userIdx := make(map[string]model.EnrichedUser, len(users))
	for _, u := range users {
		userIdx[u.UserID] = u
	}
	productIdx := make(map[string]model.EnrichedProduct, len(products))
	for _, p := range products {
		productIdx[p.ProductID] = p
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := a.DailySales(gctx, txs)
		tables.DailySales = rows
		return err
	})
	g.Go(func() error {
		tables.UserAnalytics = UserAnalytics(txs, userIdx)
		return gctx.Err()
	})
	g.Go(func() error {
		rows, err := a.ProductPerformance(gctx, txs, productIdx)
		tables.ProductPerformance = rows
		return err
	})
	g.Go(func() error {
		tables.FinancialReports = []model.FinancialReport{FinancialReport(txs, a.now())}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.log.Info("aggregates built",
		"daily_sales", len(tables.DailySales),
		"user_analytics", len(tables.UserAnalytics),
		"product_performance", len(tables.ProductPerformance),
		"financial_reports", len(tables.FinancialReports),
	)
	return tables, nil
}

// ------------------- daily sales -------------------

type salesAcc struct {
	revenue    float64
	count      int
	customers  map[string]struct{}
	byCurrency map[string]float64
	byMethod   map[string]float64
}

func newSalesAcc() *salesAcc {
	return &salesAcc{
		customers:  make(map[string]struct{}),
		byCurrency: make(map[string]float64),
		byMethod:   make(map[string]float64),
	}
}

func (s *salesAcc) add(t *model.EnrichedTransaction) {
	s.revenue += t.AmountUSD
	s.count++
	s.customers[t.UserID] = struct{}{}
	s.byCurrency[t.Currency] += t.Amount
	s.byMethod[t.PaymentMethod] += t.AmountUSD
}

func (s *salesAcc) merge(o *salesAcc) {
	s.revenue += o.revenue
	s.count += o.count
	for k := range o.customers {
		s.customers[k] = struct{}{}
	}
	for k, v := range o.byCurrency {
		s.byCurrency[k] += v
	}
	for k, v := range o.byMethod {
		s.byMethod[k] += v
	}
}

func (s *salesAcc) average() float64 {
	return safeDiv(s.revenue, float64(s.count))
}

// DailySales groups transactions by date. Transactions without a parsable
// date are left out.
func (a *Aggregator) DailySales(ctx context.Context, txs []model.EnrichedTransaction) ([]model.DailySales, error) {
	merged, err := fanOut(ctx, txs, a.workers, func(part []model.EnrichedTransaction) map[string]*salesAcc {
		accs := make(map[string]*salesAcc)
		for i := range part {
			t := &part[i]
			if t.TransactionDate == nil {
				continue
			}
			acc, ok := accs[*t.TransactionDate]
			if !ok {
				acc = newSalesAcc()
				accs[*t.TransactionDate] = acc
			}
			acc.add(t)
		}
		return accs
	}, (*salesAcc).merge)
	if err != nil {
		return nil, err
	}

	rows := make([]model.DailySales, 0, len(merged))
	for date, acc := range merged {
		rows = append(rows, model.DailySales{
			Date:                   date,
			TotalRevenue:           acc.revenue,
			TotalTransactions:      acc.count,
			UniqueCustomers:        len(acc.customers),
			AverageOrderValue:      acc.average(),
			RevenueByCurrency:      acc.byCurrency,
			RevenueByPaymentMethod: acc.byMethod,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

// ------------------- product performance -------------------

type productAcc struct {
	revenue   float64
	orders    int
	customers map[string]struct{}
}

func (p *productAcc) merge(o *productAcc) {
	p.revenue += o.revenue
	p.orders += o.orders
	for k := range o.customers {
		p.customers[k] = struct{}{}
	}
}

// PerformanceTier buckets product revenue.
func PerformanceTier(revenue float64) string {
	switch {
	case revenue > ProductTierHighRevenue:
		return PerformanceHigh
	case revenue > ProductTierMediumRevenue:
		return PerformanceMedium
	default:
		return PerformanceLow
	}
}

// ProductPerformance groups transactions by product.
func (a *Aggregator) ProductPerformance(ctx context.Context, txs []model.EnrichedTransaction, products map[string]model.EnrichedProduct) ([]model.ProductPerformance, error) {
	merged, err := fanOut(ctx, txs, a.workers, func(part []model.EnrichedTransaction) map[string]*productAcc {
		accs := make(map[string]*productAcc)
		for i := range part {
			t := &part[i]
			acc, ok := accs[t.ProductID]
			if !ok {
				acc = &productAcc{customers: make(map[string]struct{})}
				accs[t.ProductID] = acc
			}
			acc.revenue += t.AmountUSD
			acc.orders++
			acc.customers[t.UserID] = struct{}{}
		}
		return accs
	}, (*productAcc).merge)
	if err != nil {
		return nil, err
	}

	rows := make([]model.ProductPerformance, 0, len(merged))
	for id, acc := range merged {
		row := model.ProductPerformance{
			ProductID:         id,
			TotalRevenue:      acc.revenue,
			TotalOrders:       acc.orders,
			UniqueCustomers:   len(acc.customers),
			AverageOrderValue: safeDiv(acc.revenue, float64(acc.orders)),
			PerformanceTier:   PerformanceTier(acc.revenue),
		}
		if p, ok := products[id]; ok {
			row.ProductName = stringPtr(p.Name)
			row.Category = copyString(p.Category)
			row.BasePrice = p.PriceUSD
			row.InventoryCount = p.InventoryCount
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
	return rows, nil
}

// ------------------- user analytics -------------------

// modeCounter tracks value frequencies. Ties resolve to the value seen first.
type modeCounter struct {
	counts map[string]int
	order  []string
}

func (m *modeCounter) add(v string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	if _, seen := m.counts[v]; !seen {
		m.order = append(m.order, v)
	}
	m.counts[v]++
}

func (m *modeCounter) mode() *string {
	var best string
	bestCount := 0
	for _, v := range m.order {
		if c := m.counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

type userAcc struct {
	spent      float64
	orders     int
	lastDate   *string
	methods    modeCounter
	categories modeCounter
}

// UserAnalytics groups transactions by user in a single ordered pass, which
// keeps the preferred payment method and category ties deterministic.
func UserAnalytics(txs []model.EnrichedTransaction, users map[string]model.EnrichedUser) []model.UserAnalytics {
	accs := make(map[string]*userAcc)
	for i := range txs {
		t := &txs[i]
		acc, ok := accs[t.UserID]
		if !ok {
			acc = &userAcc{}
			accs[t.UserID] = acc
		}
		acc.spent += t.AmountUSD
		acc.orders++
		if d := t.TransactionDate; d != nil && (acc.lastDate == nil || *d > *acc.lastDate) {
			acc.lastDate = copyString(d)
		}
		if t.PaymentMethod != "" {
			acc.methods.add(t.PaymentMethod)
		}
		if t.ProductCategory != nil {
			acc.categories.add(*t.ProductCategory)
		}
	}

	rows := make([]model.UserAnalytics, 0, len(accs))
	for id, acc := range accs {
		row := model.UserAnalytics{
			UserID:                 id,
			CustomerTier:           DefaultCustomerTier,
			TotalSpent:             acc.spent,
			TotalOrders:            acc.orders,
			AverageOrderValue:      safeDiv(acc.spent, float64(acc.orders)),
			LastOrderDate:          acc.lastDate,
			PreferredPaymentMethod: acc.methods.mode(),
			PreferredCategory:      acc.categories.mode(),
			IsHighValueCustomer:    acc.spent > HighValueCustomerThreshold,
		}
		if u, ok := users[id]; ok {
			row.Email = stringPtr(u.Email)
			row.Country = stringPtr(u.Country)
			if u.CustomerTier != "" {
				row.CustomerTier = u.CustomerTier
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

// ------------------- financial report -------------------

// FinancialReport is the rolling snapshot of all transactions, dated today.
func FinancialReport(txs []model.EnrichedTransaction, now time.Time) model.FinancialReport {
	acc := newSalesAcc()
	for i := range txs {
		acc.add(&txs[i])
	}
	today := now.UTC().Format("2006-01-02")
	return model.FinancialReport{
		ReportDate:             today,
		ReportType:             ReportTypeDaily,
		PeriodStart:            today,
		PeriodEnd:              today,
		TotalRevenue:           acc.revenue,
		TotalTransactions:      acc.count,
		AverageOrderValue:      acc.average(),
		RevenueByCurrency:      acc.byCurrency,
		RevenueByPaymentMethod: acc.byMethod,
	}
}

// ------------------- helpers -------------------

// fanOut reduces contiguous chunks of txs concurrently and merges the partial
// maps in chunk order.
func fanOut[A any](ctx context.Context, txs []model.EnrichedTransaction, workers int, reduce func([]model.EnrichedTransaction) map[string]*A, merge func(dst, src *A)) (map[string]*A, error) {
	bounds := chunkBounds(len(txs), workers)
	parts := make([]map[string]*A, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = reduce(txs[b[0]:b[1]])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*A)
	for _, part := range parts {
		for k, acc := range part {
			if existing, ok := merged[k]; ok {
				merge(existing, acc)
				continue
			}
			merged[k] = acc
		}
	}
	return merged, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
