// Package rank classifies lifetime point totals into named tiers.
//
// Tiers are half-open ranges [Min, Max) that together cover [0, inf) with no
// gap and no overlap. A total equal to a tier's Max belongs to the next tier.
package rank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Sentinel kinds for ladder validation.
var (
	ErrEmptyLadder    = errors.New("rank ladder is empty")
	ErrLadderStart    = errors.New("rank ladder must start at 0")
	ErrLadderGap      = errors.New("rank ladder has a gap or overlap")
	ErrLadderBounds   = errors.New("rank tier has an empty range")
	ErrLadderUnbounds = errors.New("only the last rank tier may be unbounded")
)

// Tier is a named point range. The top tier is Unbounded and ignores Max.
type Tier struct {
	Name      string
	Min       int64
	Max       int64
	Unbounded bool
}

// Contains reports whether total falls in [Min, Max).
func (t Tier) Contains(total *big.Int) bool {
	if total.Cmp(big.NewInt(t.Min)) < 0 {
		return false
	}
	return t.Unbounded || total.Cmp(big.NewInt(t.Max)) < 0
}

// Range renders the tier bounds, e.g. "250–750 pts" or "4,095,750+ pts".
func (t Tier) Range() string {
	lo := FormatPoints(big.NewInt(t.Min))
	if t.Unbounded {
		return lo + "+ pts"
	}
	return lo + "–" + FormatPoints(big.NewInt(t.Max)) + " pts"
}

// Ladder is an ascending, contiguous list of tiers.
type Ladder []Tier

var defaultLadder = Ladder{
	{Name: "Adept", Min: 0, Max: 250},
	{Name: "Scholar", Min: 250, Max: 750},
	{Name: "Savant", Min: 750, Max: 1750},
	{Name: "Expert", Min: 1750, Max: 3750},
	{Name: "Mastermind", Min: 3750, Max: 7750},
	{Name: "Visionary", Min: 7750, Max: 15750},
	{Name: "Genius", Min: 15750, Max: 31750},
	{Name: "Virtuoso", Min: 31750, Max: 63750},
	{Name: "Luminary", Min: 63750, Max: 127750},
	{Name: "Prodigy", Min: 127750, Max: 255750},
	{Name: "Oracle", Min: 255750, Max: 511750},
	{Name: "Sage", Min: 511750, Max: 1023750},
	{Name: "Philosopher", Min: 1023750, Max: 2047750},
	{Name: "Mystic", Min: 2047750, Max: 4095750},
	{Name: "Transcendent", Min: 4095750, Unbounded: true},
}

func init() { //nolint:gochecknoinits // the built-in ladder must satisfy the partition invariant
	if err := Validate(defaultLadder); err != nil {
		panic(err)
	}
}

// Default returns a copy of the built-in 15-tier ladder.
func Default() Ladder {
	out := make(Ladder, len(defaultLadder))
	copy(out, defaultLadder)
	return out
}

// Validate checks that l partitions [0, inf).
func Validate(l Ladder) error {
	if len(l) == 0 {
		return ErrEmptyLadder
	}
	if l[0].Min != 0 {
		return ErrLadderStart
	}
	for i, t := range l {
		last := i == len(l)-1
		if t.Unbounded != last {
			return fmt.Errorf("%w: tier %q", ErrLadderUnbounds, t.Name)
		}
		if !t.Unbounded && t.Max <= t.Min {
			return fmt.Errorf("%w: tier %q", ErrLadderBounds, t.Name)
		}
		if !last && l[i+1].Min != t.Max {
			return fmt.Errorf("%w: between %q and %q", ErrLadderGap, t.Name, l[i+1].Name)
		}
	}
	return nil
}

// For returns the tier containing total. Nil or negative totals fall back to the lowest tier.
func (l Ladder) For(total *big.Int) Tier {
	if total == nil || total.Sign() < 0 {
		return l[0]
	}
	for _, t := range l {
		if t.Contains(total) {
			return t
		}
	}
	return l[0]
}

// For classifies total against the built-in ladder.
func For(total *big.Int) Tier {
	return defaultLadder.For(total)
}

// Progress describes a total's position on the ladder.
type Progress struct {
	Tier         Tier
	Next         *Tier    // nil at the top tier
	PointsToNext *big.Int // nil at the top tier
}

// ProgressFor returns the tier for total and the distance to the next one.
func (l Ladder) ProgressFor(total *big.Int) Progress {
	if total == nil || total.Sign() < 0 {
		total = new(big.Int)
	}
	current := l.For(total)
	p := Progress{Tier: current}
	for i, t := range l {
		if t.Name == current.Name && i+1 < len(l) {
			next := l[i+1]
			p.Next = &next
			p.PointsToNext = new(big.Int).Sub(big.NewInt(next.Min), total)
			break
		}
	}
	return p
}

// ProgressFor uses the built-in ladder.
func ProgressFor(total *big.Int) Progress {
	return defaultLadder.ProgressFor(total)
}

// FormatPoints renders n with thousands separators.
func FormatPoints(n *big.Int) string {
	if n == nil {
		return "0"
	}
	s := n.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
