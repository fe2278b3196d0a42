package pipeline

import "ecommerce-analytics-pipeline/internal/model"

// HighValueThreshold is the USD amount above which a transaction is high value.
const HighValueThreshold = 500.0

// Classification values produced by the rule engine.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityStandard = "standard"
)

var preferredPaymentMethods = map[string]bool{
	"credit_card": true,
	"paypal":      true,
}

var tierPriority = map[string]string{
	"vip":     PriorityHigh,
	"premium": PriorityMedium,
}

// Rule sets one classification on a transaction. A rule may only read base,
// snapshot and derived fields, never the output of another rule.
type Rule func(t *model.EnrichedTransaction)

// RuleEngine applies independent rules. Since no rule reads another's output
// the order is irrelevant and applying the engine twice changes nothing.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine returns an engine with the default rule set.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{rules: []Rule{
		PaymentMethodRisk,
		TransactionRisk,
		ProcessingPriority,
	}}
}

// Apply returns a classified copy of txs with the same length and order.
func (e *RuleEngine) Apply(txs []model.EnrichedTransaction) []model.EnrichedTransaction {
	out := make([]model.EnrichedTransaction, len(txs))
	for i := range txs {
		out[i] = txs[i]
		e.ApplyOne(&out[i])
	}
	return out
}

// ApplyOne classifies t in place.
func (e *RuleEngine) ApplyOne(t *model.EnrichedTransaction) {
	for _, rule := range e.rules {
		rule(t)
	}
}

// IsHighValue reports whether the USD amount exceeds HighValueThreshold.
func IsHighValue(amountUSD float64) bool {
	return amountUSD > HighValueThreshold
}

// PaymentMethodRisk flags high-value purchases paid outside the preferred methods.
func PaymentMethodRisk(t *model.EnrichedTransaction) {
	if IsHighValue(t.AmountUSD) && !preferredPaymentMethods[t.PaymentMethod] {
		t.PaymentMethodRisk = RiskHigh
		return
	}
	t.PaymentMethodRisk = RiskLow
}

// TransactionRisk flags non-USD transactions.
func TransactionRisk(t *model.EnrichedTransaction) {
	if t.Currency != "USD" {
		t.TransactionRisk = RiskMedium
		return
	}
	t.TransactionRisk = RiskLow
}

// ProcessingPriority maps the user tier snapshot to a priority.
func ProcessingPriority(t *model.EnrichedTransaction) {
	if p, ok := tierPriority[t.UserTier]; ok {
		t.ProcessingPriority = p
		return
	}
	t.ProcessingPriority = PriorityStandard
}
