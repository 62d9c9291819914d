package journey

import (
	"math/rand"
	"strings"

	"bookload/internal/extract"
)

// Rand is the randomness a worker needs. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int { return rand.Intn(n) }

// DefaultRand draws from math/rand's shared, goroutine-safe source.
var DefaultRand Rand = globalRand{}

// Selector picks one offer out of a non-empty list.
type Selector interface {
	Select(r Rand, offers []extract.Record) extract.Record
}

// Uniform picks any offer with equal probability.
type Uniform struct{}

func (Uniform) Select(r Rand, offers []extract.Record) extract.Record {
	if len(offers) == 0 {
		return nil
	}
	return offers[r.Intn(len(offers))]
}

// Filter decides whether an offer is preferred by a Biased selector.
type Filter func(extract.Record) bool

// FieldEquals matches offers whose field equals value, ignoring case.
func FieldEquals(field, value string) Filter {
	return func(rec extract.Record) bool {
		v, ok := rec.Get(field)
		return ok && strings.EqualFold(v, value)
	}
}

// Biased restricts the choice to offers passing Filter with the given
// Probability, as long as at least one offer passes. Otherwise, and on the
// remaining draws, it behaves like Uniform.
type Biased struct {
	Probability float64
	Filter      Filter
}

func (b Biased) Select(r Rand, offers []extract.Record) extract.Record {
	if len(offers) == 0 {
		return nil
	}

	pool := offers
	if r.Float64() < b.Probability {
		var preferred []extract.Record
		for _, o := range offers {
			if b.Filter(o) {
				preferred = append(preferred, o)
			}
		}
		if len(preferred) > 0 {
			pool = preferred
		}
	}
	return pool[r.Intn(len(pool))]
}
