package view

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/oddsview/oddsview/internal/odds"
)

// Row is one display row: one logical bet line across all sportsbooks that
// currently price it. Rows are derived state, recomputed from the snapshot
// on every mutation and never independently mutated.
type Row struct {
	// Key is the outcome key the row groups by, stable per logical bet
	// line across sportsbooks.
	Key string

	Label       string
	OutcomeName string
	OutcomeLine *string
	OverUnder   *string
	Target      *string

	// Books holds only sportsbooks with live odds for this row.
	Books map[string]odds.Outcome

	// BestBook is the sportsbook with the numerically greatest American
	// odds, empty when no cell is priced. Numeric-max is only "best for
	// the bettor" when all cells price the same side, which holds for
	// same-side comparison across books; mixed-sign cross-side
	// comparison is a known limitation.
	BestBook string

	// PairID groups complementary outcomes for display adjacency.
	PairID string
}

// Project builds the ordered row sequence from a snapshot.
func Project(snap odds.Snapshot) []Row {
	cells := make(map[string]map[string]odds.Outcome) // outcome key → book → cell
	for book, outcomes := range snap.Books {
		for key, o := range outcomes {
			if o.Odds == nil {
				continue
			}
			if cells[key] == nil {
				cells[key] = make(map[string]odds.Outcome)
			}
			cells[key][book] = o
		}
	}

	rows := make([]Row, 0, len(cells))
	for key, books := range cells {
		// Describe the row from its lexicographically first book so the
		// projection of identical input is identical.
		rep := books[minKey(books)]

		rows = append(rows, Row{
			Key:         key,
			Label:       deriveLabel(rep),
			OutcomeName: rep.OutcomeName,
			OutcomeLine: rep.OutcomeLine,
			OverUnder:   rep.OverUnder,
			Target:      rep.Target,
			Books:       books,
			BestBook:    bestBook(books),
			PairID:      derivePairID(rep),
		})
	}

	sortRows(rows)
	return rows
}

// deriveLabel builds the display label for an outcome.
func deriveLabel(o odds.Outcome) string {
	if o.OverUnder != nil && o.OutcomeLine != nil {
		side := "Over"
		if *o.OverUnder == "U" {
			side = "Under"
		}
		return side + " " + *o.OutcomeLine
	}
	if o.Target != nil {
		if o.OutcomeLine != nil {
			return *o.Target + " " + *o.OutcomeLine
		}
		return *o.Target
	}
	return o.OutcomeName
}

// derivePairID groups complementary outcomes: both sides of a spread share
// spread_{abs(line)}, over/under of a total share total_{line}, everything
// else is its own singleton group.
func derivePairID(o odds.Outcome) string {
	name := strings.ToLower(o.OutcomeName)

	if o.OutcomeLine != nil {
		if line, ok := odds.ParseLine(*o.OutcomeLine); ok {
			switch name {
			case "spread":
				return "spread_" + formatLine(math.Abs(line))
			case "total":
				return "total_" + formatLine(line)
			}
		}
	}

	return "other_" + name
}

func formatLine(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// bestBook picks the sportsbook with the numerically greatest odds among
// priced cells; ties go to the lexicographically first book.
func bestBook(books map[string]odds.Outcome) string {
	best := ""
	bestVal := 0
	for _, book := range sortedKeys(books) {
		o := books[book]
		if o.Odds == nil {
			continue
		}
		v, ok := odds.ParseAmerican(*o.Odds)
		if !ok {
			continue
		}
		if best == "" || v > bestVal {
			best = book
			bestVal = v
		}
	}
	return best
}

// sortRows orders rows by pair group (abs line ascending, pairId for ties),
// then signed line ascending within the group, then Over before Under, then
// label. The ordering is total, so repeated projection is stable.
func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]

		ga, gb := groupLine(a), groupLine(b)
		if ga != gb {
			return ga < gb
		}
		if a.PairID != b.PairID {
			return a.PairID < b.PairID
		}

		la, lb := signedLine(a), signedLine(b)
		if la != lb {
			return la < lb
		}

		ra, rb := overUnderRank(a), overUnderRank(b)
		if ra != rb {
			return ra < rb
		}

		return a.Label < b.Label
	})
}

// groupLine is the pair group's ordering key: the absolute value of the
// row's line, 0 when the row has no parseable line.
func groupLine(r Row) float64 {
	if r.OutcomeLine == nil {
		return 0
	}
	v, ok := odds.ParseLine(*r.OutcomeLine)
	if !ok {
		return 0
	}
	return math.Abs(v)
}

func signedLine(r Row) float64 {
	if r.OutcomeLine == nil {
		return 0
	}
	v, ok := odds.ParseLine(*r.OutcomeLine)
	if !ok {
		return 0
	}
	return v
}

func overUnderRank(r Row) int {
	if r.OverUnder == nil {
		return 2
	}
	switch *r.OverUnder {
	case "O":
		return 0
	case "U":
		return 1
	}
	return 2
}

func minKey(m map[string]odds.Outcome) string {
	min := ""
	for k := range m {
		if min == "" || k < min {
			min = k
		}
	}
	return min
}

func sortedKeys(m map[string]odds.Outcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
