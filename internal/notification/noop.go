package notification

import (
	"context"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
)

// NoOpPublisher logs swap outcomes instead of publishing them. Use when SNS
// is not configured (local development, testing).
type NoOpPublisher struct {
	logger *observability.Logger
}

func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// ReportSwapOutcome logs the outcome. Implements swap.OutcomeReporter.
func (p *NoOpPublisher) ReportSwapOutcome(ctx context.Context, outcome swap.Outcome) {
	if p.logger == nil {
		return
	}
	fields := []any{
		"state", outcome.State.String(),
		"pair", outcome.Intent.InToken.Symbol + "/" + outcome.Intent.OutToken.Symbol,
	}
	if outcome.Err != nil {
		fields = append(fields,
			"error", outcome.Err.Error(),
			"phase", outcome.Phase().String(),
		)
	}
	p.logger.LogInfo(ctx, "swap outcome (SNS disabled)", fields...)
}

// CircuitBreakerState returns "closed" since there is no circuit breaker
func (p *NoOpPublisher) CircuitBreakerState() string {
	return "closed"
}
