package models

import (
	"encoding/json"
	"time"
)

// AccountKind is the role of an account.
type AccountKind string

const (
	KindIndividual AccountKind = "individual"
	KindStudent    AccountKind = "student"
	KindAdmin      AccountKind = "admin"
)

// Valid reports whether k is a known kind.
func (k AccountKind) Valid() bool {
	switch k {
	case KindIndividual, KindStudent, KindAdmin:
		return true
	}
	return false
}

type Account struct {
	UserID         string
	Username       string
	Email          string
	PasswordDigest []byte
	PasswordSalt   []byte
	Kind           AccountKind
	CustomerID     string
	InstitutionID  string
	CourseProgress json.RawMessage
}

// PaymentProfile is 1:1 with an Account.
type PaymentProfile struct {
	UserID         string
	CustomerID     string
	InstitutionID  string
	SubscriptionID string
	PaidCourses    map[string]bool
}

// AuthChallenge holds the current MFA code of an account. An empty Code means
// there is no live challenge.
type AuthChallenge struct {
	UserID   string
	Code     string
	IssuedAt time.Time
	// Attempts counts wrong codes entered against the current code.
	Attempts int
}

// Live reports whether the challenge has an unconsumed code.
func (c *AuthChallenge) Live() bool {
	return c != nil && c.Code != ""
}

// SessionGrant is the server-side record backing one issued session token.
type SessionGrant struct {
	UserID    string
	TokenID   string
	CreatedAt time.Time
}

type Institution struct {
	InstitutionID  string
	AdminID        string
	JoinCode       string
	Name           string
	SubscriptionID string
	// Members holds index hashes of the member accounts' user ids.
	Members []string
}
