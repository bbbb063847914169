package models

import "time"

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateSubscribed   ConnState = "subscribed"
	StateReconnecting ConnState = "reconnecting"
)

type SessionStatus struct {
	TokenID          string
	State            ConnState
	LastError        string
	Reconnects       int
	SubscribedSince  time.Time
	LastHolderPoll   time.Time
	LastEventArrival time.Time
}

// RejectionStats counts events the normalizer dropped, per reason.
type RejectionStats struct {
	Duplicate   uint64
	NonPositive uint64
	Future      uint64
	Malformed   uint64
}

// Snapshot is a detached copy of a session's state. Nothing in it aliases live data.
type Snapshot struct {
	Status             SessionStatus
	Holders            []TokenHolder
	TopTenShare        *float64
	TotalSupply        uint64
	RecentTransactions []Transaction
	Aggregates         []AggregateWindow
	UniqueWalletsSeen  uint64
	Rejections         RejectionStats
	TakenAt            time.Time
}
