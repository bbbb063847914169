package protocol

import (
	"sort"

	"TokenPulse/internal/domain/models"
)

// Others is the label for swaps routed through no known program.
const Others = "Others"

const (
	Jupiter  = "Jupiter"
	Raydium  = "Raydium"
	Orca     = "Orca"
	Serum    = "Serum"
	OpenBook = "OpenBook"
	Meteora  = "Meteora"
	PumpFun  = "Pump.fun"
	Phoenix  = "Phoenix"
)

// mainnet program ids per venue
var defaultPrograms = map[string][]string{
	Jupiter: {
		"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
		"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB",
	},
	Raydium: {
		"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
		"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK",
		"CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C",
	},
	Orca: {
		"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
		"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
	},
	Serum: {
		"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
	},
	OpenBook: {
		"opnb2LAfJYbRMAHHvqjCwQxanZn7ReEHp1k81EohpZb",
	},
	Meteora: {
		"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo",
		"Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB",
	},
	PumpFun: {
		"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA",
	},
	Phoenix: {
		"PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY",
	},
}

// Aggregators route through other venues; the route is reported, not the hop.
var aggregators = map[string]bool{Jupiter: true}

// Classifier maps program ids to venue labels. It is immutable after construction
// and safe for concurrent use.
type Classifier struct {
	byProgram map[string]string
	venues    []string
}

// New builds a classifier from the built-in table plus extra program ids per venue.
// Extra entries override the built-in mapping of the same program id.
func New(extra map[string][]string) *Classifier {
	c := &Classifier{byProgram: make(map[string]string)}
	seen := make(map[string]bool)
	add := func(table map[string][]string) {
		for venue, ids := range table {
			for _, id := range ids {
				c.byProgram[id] = venue
			}
			if !seen[venue] {
				seen[venue] = true
				c.venues = append(c.venues, venue)
			}
		}
	}
	add(defaultPrograms)
	add(extra)
	sort.Strings(c.venues)
	return c
}

// Classify returns the venue that routed the event, or Others.
func (c *Classifier) Classify(ev models.RawEvent) string {
	first := ""
	for _, id := range ev.ProgramIDs {
		venue, ok := c.byProgram[id]
		if !ok {
			continue
		}
		if aggregators[venue] {
			return venue
		}
		if first == "" {
			first = venue
		}
	}
	if first == "" {
		return Others
	}
	return first
}

// Venues lists known labels, sorted, without Others.
func (c *Classifier) Venues() []string {
	out := make([]string, len(c.venues))
	copy(out, c.venues)
	return out
}
