package servicebus

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs each invocation at debug level and failures at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call Call) ([]any, error) {
			start := time.Now()
			items, err := next(ctx, call)

			attrs := []any{
				"message", call.Type.String(),
				"handler", call.Binding.String(),
				"depth", call.Depth,
				"produced", len(items),
				"elapsed", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(ctx, "handler failed", append(attrs, "err", err)...)
				return items, err
			}

			logger.DebugContext(ctx, "handler done", attrs...)

			return items, nil
		}
	}
}
