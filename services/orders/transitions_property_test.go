package orders

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: qualquer sequência de transições mantém expired_at coerente com o
// status e nunca sai de um status terminal
func TestTransition_RandomWalksKeepInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("terminal statuses absorb and expired_at tracks expired", prop.ForAll(
		func(steps []int) bool {
			order := orderIn(StatusPending, PaymentPending)
			now := transitionNow

			for _, step := range steps {
				target := allStatuses[step]
				before := order
				now = now.Add(time.Minute)

				next, err := Transition(order, target, now)
				if before.Status.IsTerminal() && err == nil {
					return false
				}
				if err == nil {
					order = next
				}

				if (order.ExpiredAt != nil) != (order.Status == StatusExpired) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allStatuses)-1)),
	))

	properties.TestingRun(t)
}
