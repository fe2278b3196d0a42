package pipeline

import (
	"fmt"
	"math"
	"time"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
)

// BusinessRulesThreshold is fixed and not configurable.
const BusinessRulesThreshold = 0.95

// maxIssueSamples caps the issue messages kept in a dimension's details.
const maxIssueSamples = 20

var completenessFields = []string{
	"transaction_id", "user_id", "product_id", "amount",
	"currency", "timestamp", "payment_method", "status",
}

// QualityScorer scores a transformed dataset. It holds no state between calls.
type QualityScorer struct {
	thresholds     config.QualityConfig
	paymentMethods map[string]bool
	statuses       map[string]bool
	slaWindow      time.Duration
	now            func() time.Time
}

// NewQualityScorer builds a scorer from the configured thresholds, allowed
// values and SLA window.
func NewQualityScorer(q config.QualityConfig, rules config.BusinessRulesConfig, slaWindow time.Duration, now func() time.Time) *QualityScorer {
	if now == nil {
		now = time.Now
	}
	return &QualityScorer{
		thresholds:     q,
		paymentMethods: stringSet(rules.ValidPaymentMethods),
		statuses:       stringSet(rules.ValidStatuses),
		slaWindow:      slaWindow,
		now:            now,
	}
}

// Score runs every dimension. With no transactions all scores are 0.
func (s *QualityScorer) Score(txs []model.EnrichedTransaction, users []model.EnrichedUser, products []model.EnrichedProduct) model.QualityReport {
	r := model.QualityReport{
		Completeness:  s.Completeness(txs),
		Accuracy:      s.Accuracy(txs),
		Consistency:   s.Consistency(txs, users, products),
		Timeliness:    s.Timeliness(txs),
		BusinessRules: s.BusinessRules(txs),
	}
	r.OverallScore = (r.Completeness.Score + r.Accuracy.Score + r.Consistency.Score + r.Timeliness.Score) / 4
	return r
}

// Completeness is the mean over the required fields of the fraction of
// transactions where the field is present and non-empty.
func (s *QualityScorer) Completeness(txs []model.EnrichedTransaction) model.DimensionResult {
	perField := make(map[string]float64, len(completenessFields))
	var sum float64
	for _, field := range completenessFields {
		present := 0
		for i := range txs {
			if fieldPresent(&txs[i], field) {
				present++
			}
		}
		frac := ratio(present, len(txs))
		perField[field] = frac
		sum += frac
	}
	score := sum / float64(len(completenessFields))
	return dimension(score, s.thresholds.Completeness, map[string]interface{}{
		"field_scores": perField,
	})
}

func fieldPresent(t *model.EnrichedTransaction, field string) bool {
	switch field {
	case "transaction_id":
		return t.TransactionID != ""
	case "user_id":
		return t.UserID != ""
	case "product_id":
		return t.ProductID != ""
	case "amount":
		return !math.IsNaN(t.Amount)
	case "currency":
		return t.Currency != ""
	case "timestamp":
		return t.Timestamp != ""
	case "payment_method":
		return t.PaymentMethod != ""
	case "status":
		return t.Status != ""
	}
	return false
}

// Accuracy is 1 - violations/records. A record can carry several violations,
// so the raw value may drop below 0; the score is clamped and the raw value
// kept in the details.
func (s *QualityScorer) Accuracy(txs []model.EnrichedTransaction) model.DimensionResult {
	var issues issueLog
	for i := range txs {
		t := &txs[i]
		if t.Amount <= 0 {
			issues.add("invalid amount %v in %s", t.Amount, t.TransactionID)
		}
		if !isCurrencyCode(t.Currency) {
			issues.add("invalid currency format %q in %s", t.Currency, t.TransactionID)
		}
		if !s.paymentMethods[t.PaymentMethod] {
			issues.add("invalid payment method %q in %s", t.PaymentMethod, t.TransactionID)
		}
		if !s.statuses[t.Status] {
			issues.add("invalid status %q in %s", t.Status, t.TransactionID)
		}
	}
	raw := 0.0
	if len(txs) > 0 {
		raw = 1 - float64(issues.count)/float64(len(txs))
	}
	return dimension(clamp01(raw), s.thresholds.Accuracy, map[string]interface{}{
		"raw_score":   raw,
		"issue_count": issues.count,
		"issues":      issues.samples,
	})
}

// Consistency checks per transaction that the user exists, the product exists
// and the currency matches the product's declared currency.
func (s *QualityScorer) Consistency(txs []model.EnrichedTransaction, users []model.EnrichedUser, products []model.EnrichedProduct) model.DimensionResult {
	userIDs := make(map[string]struct{}, len(users))
	for _, u := range users {
		userIDs[u.UserID] = struct{}{}
	}
	productCurrency := make(map[string]string, len(products))
	for _, p := range products {
		productCurrency[p.ProductID] = p.Currency
	}

	var issues issueLog
	for i := range txs {
		t := &txs[i]
		if _, ok := userIDs[t.UserID]; !ok {
			issues.add("transaction %s references unknown user %s", t.TransactionID, t.UserID)
		}
		cur, ok := productCurrency[t.ProductID]
		if !ok {
			issues.add("transaction %s references unknown product %s", t.TransactionID, t.ProductID)
			continue
		}
		if t.Currency != cur {
			issues.add("currency mismatch for transaction %s", t.TransactionID)
		}
	}
	score := 0.0
	if len(txs) > 0 {
		score = 1 - float64(issues.count)/float64(3*len(txs))
	}
	return dimension(clamp01(score), s.thresholds.Consistency, map[string]interface{}{
		"issue_count": issues.count,
		"issues":      issues.samples,
	})
}

// Timeliness is the fraction of transactions stamped within the SLA window
// before now. Unparsable timestamps are not timely.
func (s *QualityScorer) Timeliness(txs []model.EnrichedTransaction) model.DimensionResult {
	cutoff := s.now().Add(-s.slaWindow)
	timely := 0
	for i := range txs {
		ts, err := model.ParseTimestamp(txs[i].Timestamp)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			timely++
		}
	}
	return dimension(ratio(timely, len(txs)), s.thresholds.Timeliness, map[string]interface{}{
		"timely_records": timely,
		"total_records":  len(txs),
		"sla_window":     s.slaWindow.String(),
	})
}

// BusinessRules checks three rule families over 3 checks per transaction:
// completed implies a positive amount, refunded implies an id, and high
// value implies a preferred payment method.
func (s *QualityScorer) BusinessRules(txs []model.EnrichedTransaction) model.DimensionResult {
	var issues issueLog
	for i := range txs {
		t := &txs[i]
		if t.Status == "completed" && t.Amount <= 0 {
			issues.add("completed transaction %s has non-positive amount", t.TransactionID)
		}
		if t.Status == "refunded" && t.TransactionID == "" {
			issues.add("refunded transaction missing transaction_id")
		}
		if t.Amount > HighValueThreshold && !preferredPaymentMethods[t.PaymentMethod] {
			issues.add("high-value transaction %s uses non-preferred payment method", t.TransactionID)
		}
	}
	score := 0.0
	if len(txs) > 0 {
		score = 1 - float64(issues.count)/float64(3*len(txs))
	}
	return dimension(clamp01(score), BusinessRulesThreshold, map[string]interface{}{
		"violation_count": issues.count,
		"violations":      issues.samples,
	})
}

type issueLog struct {
	count   int
	samples []string
}

func (l *issueLog) add(format string, args ...interface{}) {
	l.count++
	if len(l.samples) < maxIssueSamples {
		l.samples = append(l.samples, fmt.Sprintf(format, args...))
	}
}

func dimension(score, threshold float64, details map[string]interface{}) model.DimensionResult {
	return model.DimensionResult{
		Score:     score,
		Threshold: threshold,
		Passed:    score >= threshold,
		Details:   details,
	}
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
