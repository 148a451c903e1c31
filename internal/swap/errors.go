package swap

import "errors"

var (
	// ErrInvalidPair is returned when the trade's token pair is not a
	// supported swap direction.
	ErrInvalidPair = errors.New("swap: invalid token pair")

	// ErrStaleQuote is returned when a quote no longer matches the intent
	// it is being used with.
	ErrStaleQuote = errors.New("swap: quote is stale for this intent")

	// ErrInsufficientInput is returned when the input amount is not positive.
	ErrInsufficientInput = errors.New("swap: input amount must be positive")

	// ErrApprovalRejected is returned when the signer declines the approval
	// transaction. Terminal for the current attempt.
	ErrApprovalRejected = errors.New("swap: approval signing rejected")

	// ErrApprovalReverted is returned when the approval transaction reverts
	// on-chain. Terminal for the current attempt.
	ErrApprovalReverted = errors.New("swap: approval transaction reverted")

	// ErrDeadlineExceeded is returned when the swap reverted because its
	// deadline passed before mining. The plan is dead; a fresh quote is
	// required.
	ErrDeadlineExceeded = errors.New("swap: transaction deadline exceeded")

	// ErrTransactionReverted is returned when the swap transaction reverted
	// on-chain. The plan is dead; a fresh quote is required.
	ErrTransactionReverted = errors.New("swap: transaction reverted")

	// ErrSwapInFlight is returned when a new swap is initiated while one is
	// submitting or pending.
	ErrSwapInFlight = errors.New("swap: another swap is in flight")

	// ErrPlanConsumed is returned when a plan is submitted twice.
	ErrPlanConsumed = errors.New("swap: plan already consumed")

	// ErrNoQuote is returned when estimation finished without producing a
	// usable quote for the current intent.
	ErrNoQuote = errors.New("swap: no quote available for intent")
)
