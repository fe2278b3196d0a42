package pipeline

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ecommerce-analytics-pipeline/internal/model"
)

func enriched(id, user, product string, amount float64, currency, method, ts string, category *string) model.EnrichedTransaction {
	et := model.EnrichedTransaction{
		Transaction: model.Transaction{
			TransactionID: id,
			UserID:        user,
			ProductID:     product,
			Amount:        amount,
			Currency:      currency,
			PaymentMethod: method,
			Status:        "completed",
			Timestamp:     ts,
		},
		UserTier:        DefaultCustomerTier,
		ProductCategory: category,
	}
	NewDeriver(clock).Transaction(&et)
	return et
}

func aggregateFixture() ([]model.EnrichedTransaction, []model.EnrichedUser, []model.EnrichedProduct) {
	books, games := "books", "games"
	txs := []model.EnrichedTransaction{
		enriched("t1", "u1", "p1", 100, "USD", "paypal", "2024-01-01T10:00:00Z", &books),
		enriched("t2", "u1", "p2", 85, "EUR", "credit_card", "2024-01-01T11:00:00Z", &games),
		enriched("t3", "u2", "p1", 900, "USD", "paypal", "2024-01-02T09:00:00Z", &books),
		enriched("t4", "u1", "p1", 50, "USD", "paypal", "2024-01-03T09:00:00Z", &games),
		enriched("t5", "u3", "p3", 20, "USD", "debit_card", "not a date", nil),
	}
	users := []model.EnrichedUser{
		{User: model.User{UserID: "u1", Email: "one@example.com", Country: "US", CustomerTier: "vip"}},
		{User: model.User{UserID: "u2", Email: "two@example.com", Country: "GB"}},
	}
	products := []model.EnrichedProduct{
		{Product: model.Product{ProductID: "p1", Name: "Book", Category: &books, InventoryCount: 7}, PriceUSD: 12.5},
	}
	return txs, users, products
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	Convey("Given a small transaction set", t, func() {
		txs, users, products := aggregateFixture()
		tables, err := NewAggregator(3, clock, nil).Build(ctx, txs, users, products)
		So(err, ShouldBeNil)

		Convey("Then daily revenue sums to the USD total of dated transactions", func() {
			var daily, dated float64
			for _, d := range tables.DailySales {
				daily += d.TotalRevenue
			}
			for _, tx := range txs {
				if tx.TransactionDate != nil {
					dated += tx.AmountUSD
				}
			}
			So(daily, ShouldAlmostEqual, dated)
			So(len(tables.DailySales), ShouldEqual, 3)
		})

		Convey("Then daily rows are keyed and broken down", func() {
			day := tables.DailySales[0]
			So(day.Date, ShouldEqual, "2024-01-01")
			So(day.TotalTransactions, ShouldEqual, 2)
			So(day.UniqueCustomers, ShouldEqual, 1)
			So(day.TotalRevenue, ShouldAlmostEqual, 200.0)
			So(day.AverageOrderValue, ShouldAlmostEqual, 100.0)
			So(day.RevenueByCurrency["EUR"], ShouldEqual, 85.0)
			So(day.RevenueByCurrency["USD"], ShouldEqual, 100.0)
			So(day.RevenueByPaymentMethod["credit_card"], ShouldAlmostEqual, 100.0)
		})

		Convey("Then user analytics resolve modes and lookups", func() {
			So(len(tables.UserAnalytics), ShouldEqual, 3)
			u1 := tables.UserAnalytics[0]
			So(u1.UserID, ShouldEqual, "u1")
			So(u1.TotalOrders, ShouldEqual, 3)
			So(u1.TotalSpent, ShouldAlmostEqual, 250.0)
			So(*u1.PreferredPaymentMethod, ShouldEqual, "paypal")
			So(*u1.PreferredCategory, ShouldEqual, "games")
			So(*u1.LastOrderDate, ShouldEqual, "2024-01-03")
			So(*u1.Email, ShouldEqual, "one@example.com")
			So(u1.CustomerTier, ShouldEqual, "vip")
			So(u1.IsHighValueCustomer, ShouldBeFalse)

			u3 := tables.UserAnalytics[2]
			So(u3.Email, ShouldBeNil)
			So(u3.CustomerTier, ShouldEqual, DefaultCustomerTier)
			So(u3.LastOrderDate, ShouldBeNil)
			So(u3.PreferredCategory, ShouldBeNil)
		})

		Convey("Then product performance is tiered by revenue", func() {
			So(len(tables.ProductPerformance), ShouldEqual, 3)
			p1 := tables.ProductPerformance[0]
			So(p1.ProductID, ShouldEqual, "p1")
			So(p1.TotalRevenue, ShouldAlmostEqual, 1050.0)
			So(p1.TotalOrders, ShouldEqual, 3)
			So(p1.UniqueCustomers, ShouldEqual, 2)
			So(p1.PerformanceTier, ShouldEqual, PerformanceMedium)
			So(*p1.ProductName, ShouldEqual, "Book")
			So(p1.BasePrice, ShouldEqual, 12.5)
			So(p1.InventoryCount, ShouldEqual, 7)
			So(tables.ProductPerformance[2].ProductName, ShouldBeNil)
		})

		Convey("Then the financial report is a single snapshot dated today", func() {
			So(len(tables.FinancialReports), ShouldEqual, 1)
			fr := tables.FinancialReports[0]
			So(fr.ReportDate, ShouldEqual, "2024-01-01")
			So(fr.PeriodStart, ShouldEqual, fr.ReportDate)
			So(fr.PeriodEnd, ShouldEqual, fr.ReportDate)
			So(fr.ReportType, ShouldEqual, ReportTypeDaily)
			So(fr.TotalTransactions, ShouldEqual, 5)
			So(fr.TotalRevenue, ShouldAlmostEqual, 1170.0)
		})

		Convey("Then the result does not depend on the worker count", func() {
			single, err := NewAggregator(1, clock, nil).Build(ctx, txs, users, products)
			So(err, ShouldBeNil)
			So(len(single.DailySales), ShouldEqual, len(tables.DailySales))
			for i := range single.DailySales {
				So(single.DailySales[i].TotalRevenue, ShouldAlmostEqual, tables.DailySales[i].TotalRevenue)
			}
			So(single.UserAnalytics, ShouldResemble, tables.UserAnalytics)
		})
	})

	Convey("Given no transactions", t, func() {
		tables, err := NewAggregator(2, clock, nil).Build(ctx, nil, nil, nil)

		Convey("Then every table is empty and no error is raised", func() {
			So(err, ShouldBeNil)
			So(tables.DailySales, ShouldBeEmpty)
			So(tables.UserAnalytics, ShouldBeEmpty)
			So(tables.ProductPerformance, ShouldBeEmpty)
			So(tables.FinancialReports, ShouldBeEmpty)
		})
	})
}

func TestPreferredValueTieBreak(t *testing.T) {
	Convey("Given a user with tied payment methods", t, func() {
		var txs []model.EnrichedTransaction
		for i, method := range []string{"debit_card", "paypal", "paypal", "debit_card"} {
			txs = append(txs, enriched(fmt.Sprintf("t%d", i), "u1", "p1", 10, "USD", method, "2024-01-01T00:00:00Z", nil))
		}

		Convey("Then the value seen first wins", func() {
			rows := UserAnalytics(txs, nil)
			So(*rows[0].PreferredPaymentMethod, ShouldEqual, "debit_card")
		})
	})
}

func TestPerformanceTier(t *testing.T) {
	Convey("Revenue tiers use strict bounds", t, func() {
		So(PerformanceTier(5000.01), ShouldEqual, PerformanceHigh)
		So(PerformanceTier(5000), ShouldEqual, PerformanceMedium)
		So(PerformanceTier(1000), ShouldEqual, PerformanceLow)
	})
}
