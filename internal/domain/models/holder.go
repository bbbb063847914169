package models

// RawBalance is one entry of a holder poll, unsorted and possibly repeated per address.
type RawBalance struct {
	Address string
	Balance uint64
}

type TokenHolder struct {
	Address string
	Balance uint64
	Rank    int
	// PercentageOfSupply is nil when the total supply is unknown.
	PercentageOfSupply *float64
	// RankDelta is previous rank minus current rank; nil for new entrants.
	RankDelta *int
}
