package pipeline

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"ecommerce-analytics-pipeline/internal/model"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func sampleDataset() Dataset {
	return Dataset{
		Transactions: []model.Transaction{{
			TransactionID: "t1",
			UserID:        "u1",
			ProductID:     "p1",
			Amount:        600,
			Currency:      "USD",
			PaymentMethod: "debit_card",
			Status:        "completed",
			Timestamp:     "2024-01-01T00:00:00Z",
		}},
		Users: []model.User{{
			UserID:       "u1",
			Email:        "a@b.com",
			Country:      "US",
			CustomerTier: "standard",
			IsActive:     true,
		}},
		Products: []model.Product{{
			ProductID: "p1",
			Name:      "X",
			Price:     100,
			Currency:  "USD",
		}},
	}
}

func TestTransformer(t *testing.T) {
	ctx := context.Background()

	Convey("Given the single high-value debit card purchase", t, func() {
		tr := NewTransformer(clock, 2, nil)
		out, err := tr.Transform(ctx, sampleDataset())
		So(err, ShouldBeNil)
		So(len(out.Transactions), ShouldEqual, 1)
		et := out.Transactions[0]

		Convey("Then it is flagged high value with high payment risk", func() {
			So(et.IsHighValue, ShouldBeTrue)
			So(et.PaymentMethodRisk, ShouldEqual, RiskHigh)
			So(et.TransactionRisk, ShouldEqual, RiskLow)
			So(et.ProcessingPriority, ShouldEqual, PriorityStandard)
		})

		Convey("Then snapshot and derived fields are filled", func() {
			So(*et.UserCountry, ShouldEqual, "US")
			So(*et.ProductBasePrice, ShouldEqual, 100.0)
			So(et.AmountUSD, ShouldEqual, 600.0)
			So(*et.TransactionDate, ShouldEqual, "2024-01-01")
			So(*et.TransactionHour, ShouldEqual, 0)
			So(*et.TransactionDayOfWeek, ShouldEqual, "Monday")
			So(et.ProfitMarginEstimate, ShouldAlmostEqual, 500.0/600.0)
			So(out.Misses, ShouldResemble, JoinStats{})
		})
	})

	Convey("Given a transaction whose user is missing", t, func() {
		ds := sampleDataset()
		ds.Users = nil
		out, err := NewTransformer(clock, 1, nil).Transform(ctx, ds)

		Convey("Then the user snapshot is nil and the tier defaults", func() {
			So(err, ShouldBeNil)
			et := out.Transactions[0]
			So(et.UserCountry, ShouldBeNil)
			So(et.UserTier, ShouldEqual, DefaultCustomerTier)
			So(et.TransactionID, ShouldEqual, "t1")
			So(out.Misses.UserMisses, ShouldEqual, 1)
			So(out.Misses.ProductMisses, ShouldEqual, 0)
		})
	})

	Convey("Given many transactions over several workers", t, func() {
		ds := sampleDataset()
		ds.Transactions = nil
		for i := 0; i < 25; i++ {
			tx := sampleDataset().Transactions[0]
			tx.TransactionID = string(rune('a' + i))
			tx.Amount = float64(i + 1)
			ds.Transactions = append(ds.Transactions, tx)
		}
		out, err := NewTransformer(clock, 4, nil).Transform(ctx, ds)

		Convey("Then output order matches input order", func() {
			So(err, ShouldBeNil)
			So(len(out.Transactions), ShouldEqual, 25)
			for i, et := range out.Transactions {
				So(et.TransactionID, ShouldEqual, ds.Transactions[i].TransactionID)
			}
		})
	})

	Convey("Given a cancelled context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewTransformer(clock, 1, nil).Transform(cctx, sampleDataset())

		Convey("Then the transform stops with the context error", func() {
			So(err, ShouldEqual, context.Canceled)
		})
	})
}

func TestJoinerSnapshotIsolation(t *testing.T) {
	Convey("Given a user whose optional fields change after enrichment", t, func() {
		age := "25-34"
		users := []model.User{{UserID: "u1", Country: "US", AgeGroup: &age}}
		j := NewJoiner(NewLookups(users, nil))
		et := j.Enrich(model.Transaction{TransactionID: "t1", UserID: "u1"}, nil)
		age = "35-44"

		Convey("Then the snapshot keeps the value seen at enrichment time", func() {
			So(*et.UserAgeGroup, ShouldEqual, "25-34")
		})
	})

	Convey("Given duplicate user ids", t, func() {
		users := []model.User{
			{UserID: "u1", Country: "US"},
			{UserID: "u1", Country: "GB"},
		}
		l := NewLookups(users, nil)

		Convey("Then the later record wins", func() {
			So(l.Users["u1"].Country, ShouldEqual, "GB")
		})
	})
}

func TestRuleEngine(t *testing.T) {
	Convey("Given enriched transactions", t, func() {
		txs := []model.EnrichedTransaction{
			{Transaction: model.Transaction{TransactionID: "a", Currency: "USD", PaymentMethod: "paypal"}, AmountUSD: 900, UserTier: "vip"},
			{Transaction: model.Transaction{TransactionID: "b", Currency: "EUR", PaymentMethod: "apple_pay"}, AmountUSD: 501, UserTier: "premium"},
			{Transaction: model.Transaction{TransactionID: "c", Currency: "GBP", PaymentMethod: "debit_card"}, AmountUSD: 500, UserTier: "unknown"},
		}
		engine := NewRuleEngine()
		once := engine.Apply(txs)

		Convey("Then each rule classifies independently", func() {
			So(once[0].PaymentMethodRisk, ShouldEqual, RiskLow)
			So(once[0].ProcessingPriority, ShouldEqual, PriorityHigh)
			So(once[1].PaymentMethodRisk, ShouldEqual, RiskHigh)
			So(once[1].TransactionRisk, ShouldEqual, RiskMedium)
			So(once[1].ProcessingPriority, ShouldEqual, PriorityMedium)
			So(once[2].PaymentMethodRisk, ShouldEqual, RiskLow)
			So(once[2].ProcessingPriority, ShouldEqual, PriorityStandard)
		})

		Convey("Then applying the rules twice changes nothing", func() {
			So(engine.Apply(once), ShouldResemble, once)
		})

		Convey("Then the input slice is left untouched", func() {
			So(txs[0].PaymentMethodRisk, ShouldEqual, "")
		})
	})
}

func TestDerivedFields(t *testing.T) {
	Convey("Currency conversion uses the fixed rate table", t, func() {
		So(ToUSD(85, "EUR"), ShouldAlmostEqual, 100.0)
		So(ToUSD(125, "CAD"), ShouldAlmostEqual, 100.0)
		So(ToUSD(42, "JPY"), ShouldEqual, 42.0)
	})

	Convey("Profit margin is exactly 0 behind its guards", t, func() {
		zero, negative, base := 0.0, -5.0, 50.0
		So(ProfitMargin(100, nil), ShouldEqual, 0.0)
		So(ProfitMargin(100, &zero), ShouldEqual, 0.0)
		So(ProfitMargin(100, &negative), ShouldEqual, 0.0)
		So(ProfitMargin(0, &base), ShouldEqual, 0.0)
		So(ProfitMargin(100, &base), ShouldEqual, 0.5)
	})

	Convey("Timestamp fields are nil when the timestamp does not parse", t, func() {
		d, h, w := TimestampFields("yesterday")
		So(d, ShouldBeNil)
		So(h, ShouldBeNil)
		So(w, ShouldBeNil)

		d, h, w = TimestampFields("2024-03-15T18:30:00")
		So(*d, ShouldEqual, "2024-03-15")
		So(*h, ShouldEqual, 18)
		So(*w, ShouldEqual, "Friday")
	})

	Convey("Inventory status and price tier buckets", t, func() {
		So(InventoryStatus(0), ShouldEqual, InventoryOutOfStock)
		So(InventoryStatus(9), ShouldEqual, InventoryLowStock)
		So(InventoryStatus(10), ShouldEqual, InventoryInStock)
		So(PriceTier(49.99), ShouldEqual, PriceTierBudget)
		So(PriceTier(50), ShouldEqual, PriceTierMidRange)
		So(PriceTier(200), ShouldEqual, PriceTierPremium)
	})

	Convey("Products are tiered on their USD price", t, func() {
		p := NewDeriver(clock).Product(model.Product{ProductID: "p", Price: 170, Currency: "GBP", InventoryCount: 3})
		So(p.PriceUSD, ShouldAlmostEqual, 170/0.73)
		So(p.PriceTier, ShouldEqual, PriceTierPremium)
		So(p.InventoryStatus, ShouldEqual, InventoryLowStock)
	})

	Convey("Lifetime days count from registration to the clock", t, func() {
		d := NewDeriver(clock)
		reg := "2023-12-22"
		bad := "soon"
		So(d.LifetimeDays(&reg), ShouldEqual, 10)
		So(d.LifetimeDays(&bad), ShouldEqual, 0)
		So(d.LifetimeDays(nil), ShouldEqual, 0)
	})
}
