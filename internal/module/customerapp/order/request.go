package order

import "encoding/json"

// MarkProcessingRequest records an approved payment against an order.
type MarkProcessingRequest struct {
	Key               string
	ProviderResponse  json.RawMessage
	NetReceivedAmount *float64
}
