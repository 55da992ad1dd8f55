// Package reconcile retries the failed buffer against fresh reference data.
package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/store"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

var tracer = otel.Tracer("uma-friends/reconcile")

const report_reconcile = "reconciler.run"

// Buffer is the failed record store.
type Buffer interface {
	ListFailed(ctx context.Context) ([]model.RawFriend, error)
	SwapFailed(ctx context.Context, read []model.NaturalKey, clean []model.CleanFriend, failed []model.RawFriend) (store.SwapResult, error)
}

// Splitter normalizes a batch, separating stale records.
type Splitter interface {
	Split(ctx context.Context, raws []model.RawFriend) ([]model.CleanFriend, []model.RawFriend, error)
}

// ReconciliationError means the buffer could not be reconciled. The buffer
// is left exactly as it was read.
type ReconciliationError struct {
	Buffered int
	Cause    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %d buffered records: %v", e.Buffered, e.Cause)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Cause
}

// Report summarizes one reconciliation.
type Report struct {
	Buffered    int `json:"buffered"`
	Promoted    int `json:"promoted"`
	Duplicates  int `json:"duplicates"`
	StillFailed int `json:"still_failed"`
}

// Reconciler moves buffered records that now normalize into the clean store.
type Reconciler struct {
	buf      Buffer
	splitter Splitter
	tel      telemetry.API
}

// New creates a Reconciler. The splitter should be built for this run so
// that its reference caches are fresh.
func New(buf Buffer, splitter Splitter, tel telemetry.API) *Reconciler {
	return &Reconciler{buf: buf, splitter: splitter, tel: telemetry.NewScopedAPI("reconcile", tel)}
}

// Run reads the whole buffer, normalizes it and swaps the result in with a
// single transaction, so no buffered record is lost when any step fails.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Run")
	defer span.End()

	buffered, err := r.buf.ListFailed(ctx)
	if err != nil {
		return Report{}, &ReconciliationError{Cause: fmt.Errorf("read buffer: %w", err)}
	}
	rep := Report{Buffered: len(buffered)}
	if len(buffered) == 0 {
		r.tel.ReportInfo("failed buffer is empty")
		return rep, nil
	}

	clean, failed, err := r.splitter.Split(ctx, buffered)
	if err != nil {
		r.tel.ReportBroken(report_reconcile, err)
		return rep, &ReconciliationError{Buffered: len(buffered), Cause: err}
	}

	read := make([]model.NaturalKey, len(buffered))
	for i, raw := range buffered {
		read[i] = raw.Key
	}
	res, err := r.buf.SwapFailed(ctx, read, clean, failed)
	if err != nil {
		r.tel.ReportBroken(report_reconcile, err)
		return rep, &ReconciliationError{Buffered: len(buffered), Cause: err}
	}

	rep.Promoted = res.Promoted.Inserted
	rep.Duplicates = res.Promoted.Duplicates
	rep.StillFailed = res.Buffered.Inserted + res.Buffered.Duplicates
	r.tel.ReportInfo("reconciled failed buffer",
		"buffered", rep.Buffered, "promoted", rep.Promoted, "still_failed", rep.StillFailed)
	return rep, nil
}
