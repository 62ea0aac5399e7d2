package disagg

import (
	"github.com/rotisserie/eris"
)

// ErrMalformedBracketVector is returned when an income bracket vector is not
// a proper one-hot of the bracket table's length.
var ErrMalformedBracketVector = eris.New("disagg: malformed bracket vector")

// Bracket is an income range in dollars, inclusive at both ends.
type Bracket struct {
	Name string
	Min  int
	Max  int
}

// Brackets is the fixed household income table, in ACS B25121 order.
var Brackets = []Bracket{
	{Name: "less10k", Min: 5000, Max: 10000},
	{Name: "10to20k", Min: 10000, Max: 20000},
	{Name: "20to35k", Min: 20000, Max: 35000},
	{Name: "35to50k", Min: 35000, Max: 50000},
	{Name: "50to75k", Min: 50000, Max: 75000},
	{Name: "75to100k", Min: 75000, Max: 100000},
	{Name: "more100k", Min: 100000, Max: 400000},
}

// BracketNames returns the bracket column names in table order.
func BracketNames() []string {
	names := make([]string, len(Brackets))
	for i, b := range Brackets {
		names[i] = b.Name
	}
	return names
}

// SynthesizeIncome draws a uniform integer income from the bracket selected
// by onehot.
func SynthesizeIncome(r Rand, onehot []int) (int, error) {
	if len(onehot) != len(Brackets) {
		return 0, eris.Wrapf(ErrMalformedBracketVector, "disagg: length %d, want %d", len(onehot), len(Brackets))
	}
	idx := -1
	for i, v := range onehot {
		switch v {
		case 0:
		case 1:
			if idx >= 0 {
				return 0, eris.Wrapf(ErrMalformedBracketVector, "disagg: more than one bracket set in %v", onehot)
			}
			idx = i
		default:
			return 0, eris.Wrapf(ErrMalformedBracketVector, "disagg: entry %d is %d", i, v)
		}
	}
	if idx < 0 {
		return 0, eris.Wrap(ErrMalformedBracketVector, "disagg: no bracket set")
	}

	b := Brackets[idx]
	return b.Min + r.IntN(b.Max-b.Min+1), nil
}
