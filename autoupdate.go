package fundingscape

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/pipeline"
)

// Watch runs an update immediately and then every interval until ctx is
// done. A failed update is logged and the next one still runs; only a
// configuration error ends the loop early. Each update is bounded by
// constants.RunTimeout.
func Watch(ctx context.Context, fs Fundingscape, interval time.Duration, opts pipeline.RunOptions) error {
	if interval <= 0 {
		return &errors.ValidationError{
			Field:   "interval",
			Value:   interval,
			Message: "update interval must be positive",
		}
	}
	logger := logging.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		updateCtx, cancel := context.WithTimeout(ctx, constants.RunTimeout)
		report, err := fs.Update(updateCtx, opts)
		cancel()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.IsConfigError(err):
			return err
		case err != nil && !stderrors.Is(err, context.DeadlineExceeded):
			logger.Error().Err(err).Msg("Scheduled update failed")
		case err != nil:
			logger.Error().Dur("timeout", constants.RunTimeout).Msg("Scheduled update timed out")
		default:
			logger.Info().Str("run_id", report.RunID).Msg(report.Summary())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
