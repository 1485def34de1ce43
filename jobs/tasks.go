package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskClassifyRefresh recomputes the full classification snapshot.
	TaskClassifyRefresh = "classify:refresh"
	// TaskReorderScan evaluates every reorder rule against current stock.
	TaskReorderScan = "reorder:scan"
	// TaskLedgerIntegrity scans the ledger for integrity findings.
	TaskLedgerIntegrity = "ledger:integrity"
)

// ScheduledPayload carries scheduling metadata shared by the periodic tasks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewClassifyRefreshTask constructs the classification refresh task.
func NewClassifyRefreshTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskClassifyRefresh, at)
}

// NewReorderScanTask constructs the reorder scan task.
func NewReorderScanTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskReorderScan, at)
}

// NewLedgerIntegrityTask constructs the ledger integrity scan task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskLedgerIntegrity, at)
}

func newScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}
