package domain

// RiskStrategy controls how a user's order size is split across take-profit
// targets. It is an attribute of the user, not of any single signal.
type RiskStrategy string

const (
	RiskLow    RiskStrategy = "low"
	RiskMedium RiskStrategy = "medium"
	RiskHigh   RiskStrategy = "high"
)

// IsValid reports whether the strategy is one of the known values.
func (r RiskStrategy) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Credential holds a user's exchange API credential. It is exclusively owned
// by one user and must never be logged or cached beyond request-signing scope.
type Credential struct {
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// Trader publishes signals; subscribed users copy them.
type Trader struct {
	ID       int64
	Name     string
	Username string
}

// User is a subscriber of a trader. CapitalFraction, when set and non-zero,
// overrides the capital fraction carried on the signal.
type User struct {
	ID              int64
	TraderID        int64
	Name            string
	Username        string
	Active          bool
	Strategy        RiskStrategy
	CapitalFraction float64 // 0 means "use the signal's fraction"
	Credential      Credential
}

// UsableFraction resolves the capital fraction applied to this user's balance
// for a given signal: the user's own setting wins over the signal's.
func (u *User) UsableFraction(s *Signal) float64 {
	if u.CapitalFraction > 0 {
		return u.CapitalFraction
	}
	return s.CapitalFraction
}
