package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finops-gl/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/finops-gl/internal/jobs"
)

// IntegrityChecker derives the ledger health report.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (balances.IntegrityReport, error)
}

// IntegrityJob runs the ledger integrity check and publishes the result as gauges.
type IntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{
		Checker: checker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskGLIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.RequestedBy)
	return err
}

// Run checks the ledger once. An unhealthy ledger is reported, not returned as
// an error: retrying cannot fix it.
func (j *IntegrityJob) Run(ctx context.Context, requestedBy string) (balances.IntegrityReport, error) {
	if j == nil || j.Checker == nil {
		return balances.IntegrityReport{}, errors.New("gl integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	logger := j.logger().With(slog.String("job", TaskGLIntegrity), slog.String("requested_by", requestedBy))
	started := j.clock()

	report, err := j.Checker.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return balances.IntegrityReport{}, tracker.End(err)
	}
	imbalance, _ := report.Difference.Abs().Float64()
	j.Metrics.SetIntegrity(imbalance, len(report.DriftedAccounts), started)

	attrs := []any{
		slog.Bool("balanced", report.IsBalanced),
		slog.String("total_debits", report.TotalDebits.StringFixed(2)),
		slog.String("total_credits", report.TotalCredits.StringFixed(2)),
		slog.Int("drifted_accounts", len(report.DriftedAccounts)),
		slog.Duration("took", j.clock().Sub(started)),
	}
	if report.Healthy() {
		logger.Info("ledger integrity ok", attrs...)
	} else {
		for _, drifted := range report.DriftedAccounts {
			logger.Warn("balance drift",
				slog.Int64("account_id", drifted.AccountID),
				slog.String("code", drifted.Code),
				slog.String("cached", drifted.Cached.StringFixed(2)),
				slog.String("derived", drifted.Derived.StringFixed(2)))
		}
		logger.Warn("ledger integrity violated", attrs...)
	}
	return report, tracker.End(nil)
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
