package factory

import (
	"sync"

	"github.com/brianvoe/gofakeit/v6"
)

// CountFunc yields a fresh instance count each time a builder is made or created.
// It receives the factory's faker, so seeded factories reproduce their counts.
type CountFunc func(*gofakeit.Faker) int

// Between returns a CountFunc picking uniformly from [min, max].
func Between(min, max int) CountFunc {
	if max < min {
		min, max = max, min
	}
	return func(f *gofakeit.Faker) int {
		return f.IntRange(min, max)
	}
}

// Cycle returns a CountFunc stepping through values in order, wrapping around.
func Cycle(values ...int) CountFunc {
	var mu sync.Mutex
	i := 0
	return func(*gofakeit.Faker) int {
		if len(values) == 0 {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	}
}

// count is unset (one instance), a fixed number, or a generator.
type count struct {
	set bool
	n   int
	fn  CountFunc
}

func fixedCount(n int) count {
	return count{set: true, n: n}
}

// materialize evaluates a generator once, yielding a fixed count
func (c count) materialize(f *gofakeit.Faker) count {
	if c.fn != nil {
		return fixedCount(c.fn(f))
	}
	return c
}

// skipped reports an explicit count below one
func (c count) skipped() bool {
	return c.set && c.fn == nil && c.n < 1
}

// amount is the number of instances a build produces
func (c count) amount(f *gofakeit.Faker) int {
	c = c.materialize(f)
	if !c.set {
		return 1
	}
	if c.n < 0 {
		return 0
	}
	return c.n
}
