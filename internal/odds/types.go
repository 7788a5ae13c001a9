package odds

import (
	"strconv"
	"strings"
)

// Outcome is one priced outcome at one sportsbook for one market
// (e.g. "Over 5.5" at DraftKings).
type Outcome struct {
	// Odds is the American-odds price as a string ("-110", "+150").
	// nil means the outcome is suspended/unavailable.
	Odds *string `json:"odds"`

	// OutcomeName is the market name ("Total", "Spread", "Moneyline").
	OutcomeName string `json:"outcome_name"`

	// OutcomeLine is the line value ("5.5", "-3.5"), nil when the market
	// has no line (moneyline).
	OutcomeLine *string `json:"outcome_line"`

	// OverUnder is "O" or "U" for totals, nil otherwise.
	OverUnder *string `json:"outcome_over_under"`

	// Target is the team or player the outcome refers to, nil when
	// not applicable.
	Target *string `json:"outcome_target"`

	// PreviousOdds is the prior tick's price, nil if unchanged or unknown.
	PreviousOdds *string `json:"previous_odds"`

	// Timestamp is the server timestamp for this price.
	Timestamp string `json:"timestamp"`
}

// Books maps sportsbook → outcome key → Outcome. The outcome key is opaque
// and stable across updates for the same logical bet line.
type Books map[string]map[string]Outcome

// Snapshot is the authoritative client-side state for exactly one
// (sport, game, market) tuple.
type Snapshot struct {
	Sport           string `json:"sport"`
	GameID          string `json:"game_id"`
	HomeTeam        string `json:"home_team"`
	AwayTeam        string `json:"away_team"`
	GameDescription string `json:"game_description"`
	Market          string `json:"market"`
	Books           Books  `json:"odds"`

	// Loading is true between issuing a subscribe and receiving the
	// first snapshot for it.
	Loading bool `json:"-"`
}

// Clone returns a deep copy of the snapshot. Readers always get clones so
// a concurrent update can never be observed half-applied.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Books = s.Books.Clone()
	return out
}

// Clone returns a deep copy of the book mapping.
func (b Books) Clone() Books {
	if b == nil {
		return nil
	}
	out := make(Books, len(b))
	for book, outcomes := range b {
		set := make(map[string]Outcome, len(outcomes))
		for key, o := range outcomes {
			set[key] = o
		}
		out[book] = set
	}
	return out
}

// ParseAmerican parses an American-odds string ("-110", "+150", "150")
// into its signed integer value.
func ParseAmerican(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLine parses a line string ("5.5", "-3.5") into a float.
func ParseLine(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String returns a pointer to s. Convenience for building outcomes.
func String(s string) *string {
	return &s
}
