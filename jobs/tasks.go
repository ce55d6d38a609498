package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueLedger carries every GL background task.
	QueueLedger = "gl"
	// TaskGLIntegrity re-derives every balance and compares it with the ledger totals.
	TaskGLIntegrity = "gl:integrity"
)

// IntegrityPayload describes who asked for an integrity run.
type IntegrityPayload struct {
	RequestedBy string `json:"requested_by"`
}

// NewIntegrityTask constructs an integrity task. Scheduled runs pass "cron".
func NewIntegrityTask(requestedBy string) (*asynq.Task, error) {
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		requestedBy = "cron"
	}
	data, err := json.Marshal(IntegrityPayload{RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.MaxRetry(3), asynq.Queue(QueueLedger), asynq.Timeout(10*time.Minute)), nil
}
