package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/logger"
)

// Dataset is the validated input of one run.
type Dataset struct {
	Transactions []model.Transaction
	Users        []model.User
	Products     []model.Product
}

// Total returns the number of records across all kinds.
func (d Dataset) Total() int {
	return len(d.Transactions) + len(d.Users) + len(d.Products)
}

// Transformed is the output of the transform stage.
type Transformed struct {
	Transactions []model.EnrichedTransaction
	Users        []model.EnrichedUser
	Products     []model.EnrichedProduct
	Misses       JoinStats
}

// Transformer composes the joiner, the derived field calculator and the rule
// engine for each entity type.
type Transformer struct {
	deriver *Deriver
	rules   *RuleEngine
	workers int
	log     *logger.Logger
}

// NewTransformer builds a Transformer. Transactions are split across workers
// goroutines; output order always matches input order.
func NewTransformer(now func() time.Time, workers int, log *logger.Logger) *Transformer {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Transformer{
		deriver: NewDeriver(now),
		rules:   NewRuleEngine(),
		workers: workers,
		log:     log,
	}
}

// Transform enriches and classifies every record of ds.
func (t *Transformer) Transform(ctx context.Context, ds Dataset) (*Transformed, error) {
	lookups := NewLookups(ds.Users, ds.Products)

	txs, misses, err := t.Transactions(ctx, ds.Transactions, lookups)
	if err != nil {
		return nil, err
	}

	out := &Transformed{
		Transactions: txs,
		Users:        t.Users(ds.Users),
		Products:     t.Products(ds.Products),
		Misses:       misses,
	}
	if misses.UserMisses > 0 || misses.ProductMisses > 0 {
		t.log.Debug("enrichment misses",
			"user_misses", misses.UserMisses,
			"product_misses", misses.ProductMisses,
		)
	}
	return out, nil
}

// Transactions joins, derives and classifies txs. Chunks are processed by
// separate workers, each writing only its own slice range.
func (t *Transformer) Transactions(ctx context.Context, txs []model.Transaction, lookups Lookups) ([]model.EnrichedTransaction, JoinStats, error) {
	joiner := NewJoiner(lookups)
	out := make([]model.EnrichedTransaction, len(txs))
	bounds := chunkBounds(len(txs), t.workers)
	stats := make([]JoinStats, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			for k := b[0]; k < b[1]; k++ {
				if k%1000 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				et := joiner.Enrich(txs[k], &stats[i])
				t.deriver.Transaction(&et)
				t.rules.ApplyOne(&et)
				out[k] = et
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, JoinStats{}, err
	}

	var total JoinStats
	for _, s := range stats {
		total.Add(s)
	}
	return out, total, nil
}

// Users derives lifetime days for each user.
func (t *Transformer) Users(users []model.User) []model.EnrichedUser {
	out := make([]model.EnrichedUser, len(users))
	for i, u := range users {
		out[i] = t.deriver.User(u)
	}
	return out
}

// Products derives USD price, inventory status and price tier.
func (t *Transformer) Products(products []model.Product) []model.EnrichedProduct {
	out := make([]model.EnrichedProduct, len(products))
	for i, p := range products {
		out[i] = t.deriver.Product(p)
	}
	return out
}

// chunkBounds splits [0,n) into at most parts contiguous half-open ranges.
func chunkBounds(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	if parts > n {
		parts = n
	}
	size := (n + parts - 1) / parts
	bounds := make([][2]int, 0, parts)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
