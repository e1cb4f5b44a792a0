package orders

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTerminalStatus       = errors.New("order is in a terminal status")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrNotExpirable         = errors.New("order is not eligible for expiration")
	ErrUnknownStatus        = errors.New("unknown order status")
)

// TransitionError descreve uma transição rejeitada. Reason é um dos erros
// sentinela acima, acessível via errors.Is
type TransitionError struct {
	OrderID int64
	From    Status
	To      Status
	Reason  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: %s -> %s: %v", e.OrderID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}

// allowedTransitions é a tabela única de transições legais
var allowedTransitions = map[Status][]Status{
	StatusPending: {
		StatusProcessing, StatusShipped, StatusDelivered, StatusCompleted,
		StatusCancelled, StatusRefunded, StatusExpired,
	},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded},
	StatusDelivered:  {StatusCompleted, StatusCancelled, StatusRefunded},
}

// CanTransition indica se a tabela permite from -> to
func CanTransition(from, to Status) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition aplica uma mudança de status com o acoplamento de pagamento.
// O pedido recebido não é alterado; a cópia atualizada é retornada.
// O alvo expired é delegado a Expire
func Transition(order Order, target Status, now time.Time) (Order, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return order, &TransitionError{OrderID: order.ID, From: order.Status, To: target, Reason: ErrUnknownStatus}
	}
	if order.Status.IsTerminal() {
		return order, &TransitionError{OrderID: order.ID, From: order.Status, To: target, Reason: ErrTerminalStatus}
	}
	if !CanTransition(order.Status, target) {
		return order, &TransitionError{OrderID: order.ID, From: order.Status, To: target, Reason: ErrTransitionNotAllowed}
	}
	if target == StatusExpired {
		return Expire(order, now)
	}

	updated := order
	updated.Status = target
	updated.PaymentStatus = coupledPaymentStatus(target, order.PaymentStatus)
	updated.UpdatedAt = now
	return updated, nil
}

// Expire move um pedido pendente e não pago para expired. É uma checagem de
// pré-condição separada porque a expiração também devolve estoque
func Expire(order Order, now time.Time) (Order, error) {
	if order.Status != StatusPending || order.PaymentStatus != PaymentPending || order.ExpiredAt != nil {
		return order, &TransitionError{OrderID: order.ID, From: order.Status, To: StatusExpired, Reason: ErrNotExpirable}
	}

	expiredAt := now
	updated := order
	updated.Status = StatusExpired
	updated.ExpiredAt = &expiredAt
	updated.UpdatedAt = now
	return updated, nil
}

func coupledPaymentStatus(target Status, current PaymentStatus) PaymentStatus {
	switch target {
	case StatusCompleted, StatusShipped, StatusDelivered:
		if current == PaymentPending {
			return PaymentPaid
		}
	case StatusCancelled:
		if current == PaymentPending {
			return PaymentFailed
		}
	case StatusRefunded:
		return PaymentRefunded
	}
	return current
}
