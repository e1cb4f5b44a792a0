package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transitionNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func orderIn(status Status, payment PaymentStatus) Order {
	return Order{
		ID:            10,
		OrderNumber:   "ORD-0010",
		Status:        status,
		PaymentStatus: payment,
		GrandTotal:    25000,
		CreatedAt:     transitionNow.Add(-48 * time.Hour),
		UpdatedAt:     transitionNow.Add(-48 * time.Hour),
	}
}

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusShipped, StatusDelivered,
	StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired,
}

func TestTransition_FollowsTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired},
		StatusProcessing: {StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded},
		StatusShipped:    {StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded},
		StatusDelivered:  {StatusCompleted, StatusCancelled, StatusRefunded},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, target := range allowed[from] {
				if target == to {
					want = true
				}
			}

			_, err := Transition(orderIn(from, PaymentPending), to, transitionNow)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.Error(t, err, "%s -> %s", from, to)
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition_TerminalStatusesAreImmutable(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired} {
		for _, to := range allStatuses {
			original := orderIn(from, PaymentPaid)

			got, err := Transition(original, to, transitionNow)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTerminalStatus, "%s -> %s", from, to)
			assert.Equal(t, original, got)
		}
	}
}

func TestTransition_PaymentCoupling(t *testing.T) {
	cases := []struct {
		target  Status
		payment PaymentStatus
		want    PaymentStatus
	}{
		{StatusCompleted, PaymentPending, PaymentPaid},
		{StatusCompleted, PaymentFailed, PaymentFailed},
		{StatusCancelled, PaymentPending, PaymentFailed},
		{StatusCancelled, PaymentPaid, PaymentPaid},
		{StatusRefunded, PaymentPending, PaymentRefunded},
		{StatusRefunded, PaymentPaid, PaymentRefunded},
		{StatusShipped, PaymentPending, PaymentPaid},
		{StatusDelivered, PaymentPending, PaymentPaid},
		{StatusDelivered, PaymentFailed, PaymentFailed},
		{StatusProcessing, PaymentPending, PaymentPending},
		{StatusProcessing, PaymentPaid, PaymentPaid},
	}

	for _, tc := range cases {
		t.Run(string(tc.target)+"/"+string(tc.payment), func(t *testing.T) {
			// Arrange
			order := orderIn(StatusPending, tc.payment)

			// Act
			got, err := Transition(order, tc.target, transitionNow)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tc.target, got.Status)
			assert.Equal(t, tc.want, got.PaymentStatus)
			assert.Equal(t, transitionNow, got.UpdatedAt)
			assert.Equal(t, order.GrandTotal, got.GrandTotal)
		})
	}
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	order := orderIn(StatusPending, PaymentPending)

	_, err := Transition(order, StatusCompleted, transitionNow)

	require.NoError(t, err)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
}

func TestTransition_UnknownTarget(t *testing.T) {
	_, err := Transition(orderIn(StatusPending, PaymentPending), Status("on_hold"), transitionNow)

	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransition_ToExpiredRequiresUnpaid(t *testing.T) {
	_, err := Transition(orderIn(StatusPending, PaymentPaid), StatusExpired, transitionNow)

	assert.ErrorIs(t, err, ErrNotExpirable)
}

func TestExpire(t *testing.T) {
	// Arrange
	order := orderIn(StatusPending, PaymentPending)

	// Act
	got, err := Expire(order, transitionNow)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Equal(t, PaymentPending, got.PaymentStatus)
	require.NotNil(t, got.ExpiredAt)
	assert.Equal(t, transitionNow, *got.ExpiredAt)
	assert.Nil(t, order.ExpiredAt)
}

func TestExpire_SecondCallIsRejected(t *testing.T) {
	first, err := Expire(orderIn(StatusPending, PaymentPending), transitionNow)
	require.NoError(t, err)

	second, err := Expire(first, transitionNow.Add(time.Hour))

	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.ErrorIs(t, err, ErrNotExpirable)
	assert.Equal(t, StatusExpired, transitionErr.From)
	assert.Equal(t, first, second)
	assert.Equal(t, transitionNow, *second.ExpiredAt)
}

func TestExpire_Preconditions(t *testing.T) {
	expiredAt := transitionNow
	withMarker := orderIn(StatusPending, PaymentPending)
	withMarker.ExpiredAt = &expiredAt

	for name, order := range map[string]Order{
		"paid":       orderIn(StatusPending, PaymentPaid),
		"processing": orderIn(StatusProcessing, PaymentPending),
		"cancelled":  orderIn(StatusCancelled, PaymentFailed),
		"has marker": withMarker,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Expire(order, transitionNow)
			assert.ErrorIs(t, err, ErrNotExpirable)
		})
	}
}
