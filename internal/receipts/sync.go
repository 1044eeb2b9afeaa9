// Package receipts runs one synchronisation pass over the configured contracts:
// fetch the current receipt, compare it with the last saved one, persist it
// when it differs and tell the operator.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-sync/constants"
	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/notify"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
	"github.com/joseph-ayodele/receipt-sync/internal/similarity"
	"github.com/joseph-ayodele/receipt-sync/internal/storage"
	"github.com/joseph-ayodele/receipt-sync/internal/utils"
)

// Fetcher is the portal session used by the job.
type Fetcher interface {
	Login(ctx context.Context) error
	FetchReceipt(ctx context.Context, contract string) ([]byte, error)
}

// Recorder persists outcomes; repository.Ledger satisfies it.
type Recorder interface {
	Record(ctx context.Context, e repository.Entry) error
}

type Job struct {
	fetcher   Fetcher
	notifier  notify.Notifier
	recorder  Recorder
	dataRoot  string
	contracts []string
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Job)

// WithRecorder records every outcome, typically into the run ledger.
func WithRecorder(r Recorder) Option {
	return func(j *Job) { j.recorder = r }
}

// WithClock sets the clock that names receipt files.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

func NewJob(fetcher Fetcher, notifier notify.Notifier, dataRoot string, contracts []string, logger *slog.Logger, opts ...Option) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewNoop(logger)
	}
	j := &Job{
		fetcher:   fetcher,
		notifier:  notifier,
		dataRoot:  dataRoot,
		contracts: append([]string(nil), contracts...),
		now:       time.Now,
		logger:    logger,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Run processes every contract in order. Per-contract failures are recorded in
// the summary and never stop the loop.
func (j *Job) Run(ctx context.Context) Summary {
	sum := Summary{RunID: uuid.New(), StartedAt: j.now()}
	ctx = common.WithLogger(common.WithRunID(ctx, sum.RunID.String()), j.logger)
	logger := common.LoggerFromContext(ctx)
	logger.Info("sync.run.start", "contracts", len(j.contracts))

	if err := j.fetcher.Login(ctx); err != nil {
		sum.Err = common.NewAppError(common.CodeFetch, "portal login failed", err)
		logger.Error("sync.login.failed", "error", err)
		for _, c := range j.contracts {
			o := Outcome{Contract: c, Status: constants.SyncStatusFailed, State: StateFailed, FailedIn: StateFetching, Err: sum.Err}
			j.record(ctx, sum.RunID, o)
			sum.add(o)
		}
		sum.FinishedAt = j.now()
		return sum
	}

	filename := constants.ReceiptFilename(sum.StartedAt.Format(constants.ReceiptDateLayout))
	for _, c := range j.contracts {
		cctx := common.WithContract(ctx, c)
		o := j.syncContract(cctx, c, filename)
		j.record(cctx, sum.RunID, o)
		sum.add(o)
	}

	sum.FinishedAt = j.now()
	logger.Info("sync.run.done",
		"saved", sum.Saved,
		"unchanged", sum.Unchanged,
		"failed", sum.Failed,
		"elapsed_ms", sum.FinishedAt.Sub(sum.StartedAt).Milliseconds(),
	)
	return sum
}

func (j *Job) syncContract(ctx context.Context, contract, filename string) (out Outcome) {
	logger := common.LoggerFromContext(ctx)
	out = Outcome{Contract: contract, State: StateFetching}
	fail := func(err error) Outcome {
		out.FailedIn = out.State
		out.State = StateFailed
		out.Status = constants.SyncStatusFailed
		out.Err = err
		logger.Error("sync.contract.failed", "state", out.FailedIn, "error", err)
		return out
	}
	defer func() {
		if r := recover(); r != nil {
			out = fail(fmt.Errorf("%w: panic: %v", common.ErrInternal, r))
		}
	}()

	content, err := j.fetcher.FetchReceipt(ctx, contract)
	if err != nil {
		return fail(common.NewAppError(common.CodeFetch, "fetch receipt", err))
	}
	out.Size = len(content)
	out.SHA256 = utils.ContentHash(content)

	out.State = StateComparing
	store := storage.ForContract(j.dataRoot, contract, logger)
	prev, err := store.LastContent()
	if err != nil {
		logger.Warn("sync.contract.history_unreadable", "error", common.NewAppError(common.CodeStorageRead, "load last receipt", err))
		prev = nil
	}
	res := similarity.Compare(prev, content)
	out.Similarity = res.Score
	logger.Debug("sync.contract.compared",
		"last_size", len(prev),
		"new_size", len(content),
		"byte_agreement", res.ByteAgreement,
		"size_agreement", res.SizeAgreement,
		"similarity", res.Score,
	)

	if res.Same {
		out.State = StateUnchanged
		out.Status = constants.SyncStatusUnchanged
		logger.Info("sync.contract.unchanged", "similarity", res.Score)
		if err := j.notifier.SendMessage(ctx, unchangedText(contract)); err != nil {
			logNotifyError(logger, "message", err)
		} else {
			out.Notified = true
		}
		return out
	}

	out.State = StatePersisting
	path, err := store.SaveReceipt(filename, content)
	if err != nil {
		return fail(common.NewAppError(common.CodeStorageWrite, "save receipt", err))
	}
	if err := store.UpdateLast(filename); err != nil {
		return fail(common.NewAppError(common.CodeStorageWrite, "update last receipt", err))
	}
	out.Filename = filename
	out.Path = path
	out.Status = constants.SyncStatusSaved
	logger.Info("sync.contract.saved", "path", path, "size", len(content))

	out.State = StateNotifying
	out.Notified = true
	if err := j.notifier.SendMessage(ctx, savedText(contract, filename)); err != nil {
		out.Notified = false
		logNotifyError(logger, "message", err)
	}
	if err := j.notifier.SendDocument(ctx, path, Caption(contract, filename)); err != nil {
		out.Notified = false
		logNotifyError(logger, "document", err)
	}

	out.State = StateDone
	return out
}

func (j *Job) record(ctx context.Context, runID uuid.UUID, o Outcome) {
	if j.recorder == nil {
		return
	}
	e := repository.Entry{
		RunID:      runID,
		Contract:   o.Contract,
		Status:     o.Status,
		Filename:   o.Filename,
		Size:       int64(o.Size),
		SHA256:     o.SHA256,
		Similarity: o.Similarity,
		RecordedAt: j.now(),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	if err := j.recorder.Record(ctx, e); err != nil {
		common.LoggerFromContext(ctx).Warn("sync.ledger.record_failed", "error", err)
	}
}

func logNotifyError(logger *slog.Logger, kind string, err error) {
	if !errors.Is(err, notify.ErrSend) {
		err = fmt.Errorf("%w: %w", notify.ErrSend, err)
	}
	logger.Warn("sync.notify.failed", "kind", kind, "error", common.NewAppError(common.CodeNotification, "notify operator", err))
}

// Caption is attached to the receipt document sent to the operator.
func Caption(contract, filename string) string {
	return contract + " " + filename
}

func savedText(contract, filename string) string {
	return fmt.Sprintf("New receipt for contract %s: %s", contract, filename)
}

func unchangedText(contract string) string {
	return fmt.Sprintf("Nothing new for contract %s", contract)
}
