package domain

import "time"

// Account represents one token holder from an analysis fetch.
// Immutable once parsed.
type Account struct {
	ID         string  // ledger account identifier
	Balance    float64 // token balance, non-negative
	IsTreasury bool    // issuing/minting account, at most one per dataset
}

// Transfer represents one token transfer from an analysis fetch.
// Multiple transfers may share the same (Sender, Receiver) pair.
type Transfer struct {
	Timestamp time.Time // zero when the source timestamp was unparseable
	TxID      string    // transaction identifier (optional)
	Sender    string    // sending account identifier
	Receiver  string    // receiving account identifier
	Amount    float64   // transferred amount, non-negative
}

// Dataset is the raw input of one analysis fetch for a token.
type Dataset struct {
	TokenID   string
	Accounts  []Account
	Transfers []Transfer
	FetchedAt time.Time
}

// MonthlyVolume aggregates the timestamped transfers of one calendar month.
type MonthlyVolume struct {
	Month     time.Time `json:"month"` // first day of the month, UTC
	Transfers int       `json:"transfers"`
	Volume    float64   `json:"volume"`
}
