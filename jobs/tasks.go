package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDatasheetSync pulls the latest datasheet orders and exchange rates.
	TaskDatasheetSync = "datasheet:sync"
	// TaskReportWarmup rebuilds cached management reports for a month.
	TaskReportWarmup = "reports:warmup"
)

// DatasheetSyncPayload configures a datasheet sync run.
type DatasheetSyncPayload struct {
	// SaveNew posts orders that exist only locally after the merge.
	SaveNew bool `json:"save_new"`
}

// ReportWarmupPayload selects the month to warm. Empty means the current month.
type ReportWarmupPayload struct {
	Month string `json:"month,omitempty"`
}

// NewDatasheetSyncTask constructs an Asynq task for a datasheet sync.
func NewDatasheetSyncTask(payload DatasheetSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDatasheetSync, body, asynq.Queue(QueueDefault)), nil
}

// NewReportWarmupTask constructs an Asynq task for report warmup.
func NewReportWarmupTask(month string) (*asynq.Task, error) {
	body, err := json.Marshal(ReportWarmupPayload{Month: month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, body, asynq.Queue(QueueDefault)), nil
}
