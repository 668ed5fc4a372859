package payment

const (
	OutcomeConfirmed = "CONFIRMED"
	OutcomeDuplicate = "DUPLICATE"
	OutcomeIgnored   = "IGNORED"
	OutcomeDeferred  = "DEFERRED"
	OutcomePending   = "PENDING"
	OutcomeFailed    = "FAILED"
)

type WebhookResponse struct {
	Outcome  string `json:"outcome"`
	OrderKey string `json:"order_key,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type ReconcileResponse struct {
	Skipped   bool `json:"skipped"`
	Checked   int  `json:"checked"`
	Confirmed int  `json:"confirmed"`
	Deferred  int  `json:"deferred"`
	Pending   int  `json:"pending"`
	Failed    int  `json:"failed"`
}

func (r *ReconcileResponse) count(outcome string) {
	switch outcome {
	case OutcomeConfirmed, OutcomeDuplicate:
		r.Confirmed++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomePending, OutcomeIgnored:
		r.Pending++
	case OutcomeFailed:
		r.Failed++
	}
}
