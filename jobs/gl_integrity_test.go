package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/balances"
	"github.com/odyssey-erp/finops-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
	jobmetrics "github.com/odyssey-erp/finops-gl/internal/jobs"
)

func gauge(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestIntegrityJobPublishesDrift(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	job := NewIntegrityJob(balances.NewService(l.Store, 0, nil), nil, jobmetrics.NewMetrics(reg))

	task, err := NewIntegrityTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	assert.Equal(t, 0.0, gauge(t, reg, "gl_balance_drift_accounts"))

	require.NoError(t, l.Store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return tx.AdjustAccountBalances(ctx, map[int64]decimal.Decimal{l.ID(seed.CodeCash): ledgertest.Amount("5")})
	}))
	report, err := job.Run(ctx, "ops")
	require.NoError(t, err, "an unhealthy ledger is reported, not retried")
	assert.False(t, report.Healthy())
	assert.Equal(t, 1.0, gauge(t, reg, "gl_balance_drift_accounts"))
	assert.Equal(t, 0.0, gauge(t, reg, "gl_ledger_imbalance"))
}

func TestIntegrityTaskPayload(t *testing.T) {
	task, err := NewIntegrityTask("  ")
	require.NoError(t, err)
	assert.Equal(t, TaskGLIntegrity, task.Type())
	var payload IntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "cron", payload.RequestedBy)
}

type failingChecker struct{}

func (failingChecker) CheckIntegrity(context.Context) (balances.IntegrityReport, error) {
	return balances.IntegrityReport{}, errors.New("store down")
}

func TestIntegrityJobFailures(t *testing.T) {
	job := NewIntegrityJob(failingChecker{}, nil, nil)
	_, err := job.Run(context.Background(), "ops")
	assert.EqualError(t, err, "store down")

	err = job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var unset *IntegrityJob
	_, err = unset.Run(context.Background(), "ops")
	assert.Error(t, err)
}
