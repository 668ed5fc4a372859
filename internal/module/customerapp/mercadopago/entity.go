package mercadopago

import "encoding/json"

const PaymentStatusApproved = "approved"

type TransactionDetails struct {
	NetReceivedAmount float64 `json:"net_received_amount"`
	TotalPaidAmount   float64 `json:"total_paid_amount"`
}

type Payment struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	ExternalReference  string             `json:"external_reference"`
	TransactionAmount  float64            `json:"transaction_amount"`
	TransactionDetails TransactionDetails `json:"transaction_details"`

	// Raw is the untouched provider body, kept on the order for audits.
	Raw json.RawMessage `json:"-"`
}

func (p Payment) Approved() bool {
	return p.Status == PaymentStatusApproved
}

// MerchantOrderPayment is the abbreviated payment nested in a merchant order.
type MerchantOrderPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	TransactionAmount float64 `json:"transaction_amount"`
}

type MerchantOrder struct {
	ID                int64                  `json:"id"`
	Status            string                 `json:"status"`
	ExternalReference string                 `json:"external_reference"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

// ApprovedPayment returns the first approved payment, if any.
func (m MerchantOrder) ApprovedPayment() (MerchantOrderPayment, bool) {
	for _, p := range m.Payments {
		if p.Status == PaymentStatusApproved {
			return p, true
		}
	}
	return MerchantOrderPayment{}, false
}

type merchantOrderSearchResponse struct {
	Elements []MerchantOrder `json:"elements"`
	Total    int             `json:"total"`
}
