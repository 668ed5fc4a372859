package reminder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Payload is the rendered content of one reminder. Map keys are emitted
// sorted by encoding/json, so the same content always serializes the same.
type Payload map[string]interface{}

func (p Payload) Bytes() []byte {
	buff, _ := json.Marshal(p)
	return buff
}

// Fingerprint identifies one reminder message to one recipient. The payload
// embeds the day count, so a rerun on the same day yields the same value.
func Fingerprint(recipient string, template string, p Payload) string {
	h := sha256.New()
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write([]byte(template))
	h.Write([]byte{0})
	h.Write(p.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

// DestinationCohort is someone with pending incoming transfers and no
// account yet.
type DestinationCohort struct {
	EventID     string
	EventName   string
	Email       string
	SenderNames []string
	Transfers   int
	Days        int
}

func (c DestinationCohort) ToPayload() Payload {
	return Payload{
		"cohort":     "destination",
		"event_id":   c.EventID,
		"event_name": c.EventName,
		"email":      c.Email,
		"senders":    c.SenderNames,
		"transfers":  c.Transfers,
		"days":       c.Days,
	}
}

// SenderCohort is a user with outgoing transfers nobody has accepted yet.
type SenderCohort struct {
	EventID      string
	EventName    string
	UserID       int64
	Email        string
	Name         string
	Destinations []string
	Pending      int
	Days         int
}

func (c SenderCohort) ToPayload() Payload {
	return Payload{
		"cohort":       "sender",
		"event_id":     c.EventID,
		"event_name":   c.EventName,
		"user_id":      c.UserID,
		"name":         c.Name,
		"destinations": c.Destinations,
		"pending":      c.Pending,
		"days":         c.Days,
	}
}

// UnsharedHolderCohort is a holder of tickets that nobody owns and that are
// not on their way to anyone.
type UnsharedHolderCohort struct {
	EventID   string
	EventName string
	UserID    int64
	Email     string
	Name      string
	Unshared  int
	Days      int
}

func (c UnsharedHolderCohort) ToPayload() Payload {
	return Payload{
		"cohort":     "unshared_holder",
		"event_id":   c.EventID,
		"event_name": c.EventName,
		"user_id":    c.UserID,
		"name":       c.Name,
		"unshared":   c.Unshared,
		"days":       c.Days,
	}
}

// SMSReminder nudges the sender of one pending transfer.
type SMSReminder struct {
	EventName        string
	TransferKey      string
	Phone            string
	DestinationEmail string
	Days             int
	SignupURL        string
}

func (s SMSReminder) Body() string {
	return "Your ticket for " + s.EventName + " sent to " + s.DestinationEmail +
		" is still pending. They need to sign up at " + s.SignupURL + " to receive it."
}

func (s SMSReminder) ToPayload() Payload {
	return Payload{
		"cohort":       "sms_sender",
		"transfer_key": s.TransferKey,
		"body":         s.Body(),
		"days":         s.Days,
	}
}
