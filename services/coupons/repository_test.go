package coupons

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestReleasedCount(t *testing.T) {
	cases := map[int]int{-3: 0, 0: 0, 1: 0, 4: 3}
	for used, want := range cases {
		if got := ReleasedCount(used); got != want {
			t.Errorf("ReleasedCount(%d) = %d, want %d", used, got, want)
		}
	}
}

// Property: k liberações a partir de n resultam em max(n-k, 0)
func TestReleasedCount_NeverBelowZero(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("repeated releases floor at zero", prop.ForAll(
		func(used, releases int) bool {
			count := used
			for i := 0; i < releases; i++ {
				count = ReleasedCount(count)
				if count < 0 {
					return false
				}
			}
			want := used - releases
			if want < 0 {
				want = 0
			}
			return count == want
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 80),
	))

	properties.TestingRun(t)
}
