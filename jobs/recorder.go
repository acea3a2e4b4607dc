// ABOUTME: Consumes job failures and attaches them to the records they concern
// ABOUTME: Writes each failure to the record's last_sync_error so a later push pass can pick it up
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"go.uber.org/zap"
)

// ErrorSink stores a sync error on a record. *db.Store implements it.
type ErrorSink interface {
	SetSyncError(ctx context.Context, entity db.Entity, id uuid.UUID, message string) error
}

type OutcomeRecorder struct {
	sink   ErrorSink
	logger *zap.Logger
}

func NewOutcomeRecorder(sink ErrorSink, logger *zap.Logger) *OutcomeRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutcomeRecorder{sink: sink, logger: logger.Named("jobs")}
}

// Run records failures until the channel is closed.
func (r *OutcomeRecorder) Run(failures <-chan Failure) {
	for f := range failures {
		r.Record(f)
	}
}

// Record writes one failure. Jobs without a record are only logged.
func (r *OutcomeRecorder) Record(f Failure) {
	logger := r.logger.With(
		zap.String("kind", f.Job.Kind),
		zap.String("entity", string(f.Job.Entity)),
		zap.String("record_id", f.Job.RecordID.String()))
	logger.Warn("job failed", zap.Error(f.Err))

	if f.Job.Entity == "" || f.Job.RecordID == uuid.Nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.sink.SetSyncError(ctx, f.Job.Entity, f.Job.RecordID, f.Err.Error()); err != nil {
		logger.Error("failed to record job failure", zap.Error(err))
	}
}
