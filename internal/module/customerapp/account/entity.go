package account

import "time"

// Account rows belong to the identity service; this service reads them and
// takes row locks on them to serialize per-user ownership decisions.
type Account struct {
	ID               int64
	Email            string
	Name             string
	Phone            string
	EmailVerified    bool
	PhoneVerified    bool
	ProfileCompleted bool
	CreatedAt        time.Time
}

// Activated is true once the mandatory profile-completion flow is done.
func (a Account) Activated() bool {
	return a.EmailVerified && a.ProfileCompleted
}
