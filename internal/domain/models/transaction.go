package models

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Role is the leg a wallet played in a swap as reported by the feed.
type Role string

const (
	RoleUnknown Role = ""
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
)

// RawEvent is a single swap leg as delivered by a feed adapter, before normalization.
type RawEvent struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	Timestamp time.Time `json:"timestamp"`
	Mint      string    `json:"mint"`
	Wallet    string    `json:"wallet"`
	Role      Role      `json:"role,omitempty"`
	// TokenDelta is the signed change of the wallet's token balance in base units.
	// With an explicit Role it must be positive.
	TokenDelta int64    `json:"token_delta"`
	Price      float64  `json:"price"`
	ProgramIDs []string `json:"program_ids"`
}

// Transaction is the canonical, immutable record produced by the normalizer.
type Transaction struct {
	Signature string
	Slot      uint64
	Timestamp time.Time
	Side      Side
	Wallet    string
	Amount    uint64
	Price     float64
	Venue     string
}
