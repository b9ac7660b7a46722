// Package worker consumes expense events and mirrors them to a spreadsheet.
package worker

import (
	"context"
	"fmt"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/cache"
	"spendlog/internal/log"
	"spendlog/internal/sheets"
)

// recentWindow bounds how long a mirrored ID is remembered to skip
// broker redeliveries.
const recentWindow = time.Hour

// MirrorWorker appends every created expense to the mirror sheet.
type MirrorWorker struct {
	sheets sheets.ExpenseWriter
	seen   *cache.LRUCache[string]
	logger *log.Logger
}

func NewMirrorWorker(w sheets.ExpenseWriter, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		sheets: w,
		seen:   cache.NewLRUCache[string](4096, recentWindow),
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleExpenseCreated mirrors one message. An error makes the consumer
// requeue the message.
func (w *MirrorWorker) HandleExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreated) error {
	if ref, ok := w.seen.Get(msg.ID); ok {
		w.logger.DebugContext(ctx, "Skipping already mirrored expense",
			log.FieldExpenseID, msg.ID, "sheets_ref", ref)
		return nil
	}

	e := msg.Expense()
	ref, err := w.sheets.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("append expense %s to sheets: %w", msg.ID, err)
	}
	w.seen.Set(msg.ID, ref)

	w.logger.InfoContext(ctx, "Mirrored expense",
		log.FieldExpenseID, msg.ID,
		log.FieldOwner, e.UserID,
		log.FieldAmount, e.Amount,
		log.FieldOperation, log.OpSync,
		"sheets_ref", ref)
	return nil
}

// Seen exposes the redelivery cache so the process can register it for sweeping.
func (w *MirrorWorker) Seen() cache.Cleaner {
	return w.seen
}
