package receipts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-sync/constants"
	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/notify"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
)

type fakeFetcher struct {
	loginErr error
	receipts map[string][]byte
	errs     map[string]error
	panics   map[string]bool
	fetched  []string
}

func (f *fakeFetcher) Login(context.Context) error { return f.loginErr }

func (f *fakeFetcher) FetchReceipt(_ context.Context, contract string) ([]byte, error) {
	f.fetched = append(f.fetched, contract)
	if f.panics[contract] {
		panic("boom")
	}
	if err := f.errs[contract]; err != nil {
		return nil, err
	}
	body, ok := f.receipts[contract]
	if !ok {
		return nil, errors.New("no such contract")
	}
	return body, nil
}

type sentDocument struct {
	path    string
	caption string
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	docs     []sentDocument
	err      error
}

func (n *recordingNotifier) SendMessage(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *recordingNotifier) SendDocument(_ context.Context, path, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.docs = append(n.docs, sentDocument{path: path, caption: caption})
	return n.err
}

type memRecorder struct {
	entries []repository.Entry
	err     error
}

func (r *memRecorder) Record(_ context.Context, e repository.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func fixedClock(day string) func() time.Time {
	t, err := time.Parse(constants.ReceiptDateLayout, day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(9 * time.Hour) }
}

func readLast(t *testing.T, root, contract string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, contract, constants.PointerFile))
	require.NoError(t, err)
	return string(raw)
}

func TestJob_FirstRunSavesAndNotifies(t *testing.T) {
	root := t.TempDir()
	content := []byte("%PDF-1.4 receipt for march")
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": content}}
	n := &recordingNotifier{}

	sum := NewJob(fetcher, n, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	require.NoError(t, sum.Err)
	require.Len(t, sum.Outcomes, 1)
	o := sum.Outcomes[0]
	assert.Equal(t, constants.SyncStatusSaved, o.Status)
	assert.Equal(t, StateDone, o.State)
	assert.Equal(t, "2024-03-01.pdf", o.Filename)
	assert.True(t, o.Notified)
	assert.Equal(t, 1, sum.Saved)

	got, err := os.ReadFile(filepath.Join(root, "123", "2024-03-01.pdf"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.JSONEq(t, `{"last_name": "2024-03-01.pdf"}`, readLast(t, root, "123"))

	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "123")
	require.Len(t, n.docs, 1)
	assert.Equal(t, filepath.Join(root, "123", "2024-03-01.pdf"), n.docs[0].path)
	assert.Equal(t, "123 2024-03-01.pdf", n.docs[0].caption)
}

func TestJob_IdenticalReceiptIsUnchanged(t *testing.T) {
	root := t.TempDir()
	content := []byte("%PDF-1.4 receipt for march")
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": content}}

	NewJob(fetcher, &recordingNotifier{}, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())
	before := readLast(t, root, "123")

	n := &recordingNotifier{}
	sum := NewJob(fetcher, n, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-02"))).Run(context.Background())

	require.Len(t, sum.Outcomes, 1)
	assert.Equal(t, constants.SyncStatusUnchanged, sum.Outcomes[0].Status)
	assert.Equal(t, StateUnchanged, sum.Outcomes[0].State)
	assert.InDelta(t, 1.0, sum.Outcomes[0].Similarity, 1e-9)
	assert.Equal(t, 1, sum.Unchanged)

	_, err := os.Stat(filepath.Join(root, "123", "2024-03-02.pdf"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, before, readLast(t, root, "123"))

	assert.Equal(t, []string{"Nothing new for contract 123"}, n.messages)
	assert.Empty(t, n.docs)
}

func TestJob_UnchangedContinuesWithNextContract(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{receipts: map[string][]byte{"1": []byte("same bytes"), "2": []byte("other")}}
	NewJob(fetcher, &recordingNotifier{}, root, []string{"1"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	fetcher.fetched = nil
	sum := NewJob(fetcher, &recordingNotifier{}, root, []string{"1", "2"}, nil, WithClock(fixedClock("2024-03-02"))).Run(context.Background())

	assert.Equal(t, []string{"1", "2"}, fetcher.fetched)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, 1, sum.Saved)
}

func TestJob_ChangedReceiptIsSavedUnderNewDay(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": []byte("march receipt body")}}
	NewJob(fetcher, &recordingNotifier{}, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	fetcher.receipts["123"] = []byte("april receipt body, longer than before")
	sum := NewJob(fetcher, &recordingNotifier{}, root, []string{"123"}, nil, WithClock(fixedClock("2024-04-01"))).Run(context.Background())

	require.Len(t, sum.Outcomes, 1)
	assert.Equal(t, constants.SyncStatusSaved, sum.Outcomes[0].Status)
	assert.Less(t, sum.Outcomes[0].Similarity, 0.99)
	assert.JSONEq(t, `{"last_name": "2024-04-01.pdf"}`, readLast(t, root, "123"))
	assert.FileExists(t, filepath.Join(root, "123", "2024-03-01.pdf"))
}

func TestJob_FetchFailureIsIsolated(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{
		receipts: map[string][]byte{"2": []byte("receipt two")},
		errs:     map[string]error{"1": errors.New("portal down")},
	}
	n := &recordingNotifier{}

	sum := NewJob(fetcher, n, root, []string{"1", "2"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	require.Len(t, sum.Outcomes, 2)
	assert.Equal(t, constants.SyncStatusFailed, sum.Outcomes[0].Status)
	assert.Equal(t, StateFetching, sum.Outcomes[0].FailedIn)
	assert.True(t, common.HasCode(sum.Outcomes[0].Err, common.CodeFetch))
	assert.Equal(t, constants.SyncStatusSaved, sum.Outcomes[1].Status)
	assert.NoDirExists(t, filepath.Join(root, "1"))
	assert.Len(t, n.docs, 1)
}

func TestJob_PanicIsRecovered(t *testing.T) {
	fetcher := &fakeFetcher{
		receipts: map[string][]byte{"2": []byte("receipt two")},
		panics:   map[string]bool{"1": true},
	}
	sum := NewJob(fetcher, &recordingNotifier{}, t.TempDir(), []string{"1", "2"}, nil).Run(context.Background())

	require.Len(t, sum.Outcomes, 2)
	assert.Equal(t, constants.SyncStatusFailed, sum.Outcomes[0].Status)
	assert.ErrorContains(t, sum.Outcomes[0].Err, "boom")
	assert.ErrorIs(t, sum.Outcomes[0].Err, common.ErrInternal)
	assert.Equal(t, constants.SyncStatusSaved, sum.Outcomes[1].Status)
}

func TestJob_LoginFailureFailsEveryContract(t *testing.T) {
	fetcher := &fakeFetcher{loginErr: errors.New("forbidden")}
	rec := &memRecorder{}

	sum := NewJob(fetcher, &recordingNotifier{}, t.TempDir(), []string{"1", "2"}, nil, WithRecorder(rec)).Run(context.Background())

	require.Error(t, sum.Err)
	assert.True(t, common.HasCode(sum.Err, common.CodeFetch))
	assert.Empty(t, fetcher.fetched)
	assert.Equal(t, 2, sum.Failed)
	require.Len(t, rec.entries, 2)
	for _, e := range rec.entries {
		assert.Equal(t, constants.SyncStatusFailed, e.Status)
		assert.Contains(t, e.Error, "forbidden")
	}
}

func TestJob_WriteFailureLeavesPointerUntouched(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "1"), []byte("not a directory"), 0o644))
	fetcher := &fakeFetcher{receipts: map[string][]byte{"1": []byte("a"), "2": []byte("b")}}
	n := &recordingNotifier{}

	sum := NewJob(fetcher, n, root, []string{"1", "2"}, nil).Run(context.Background())

	require.Len(t, sum.Outcomes, 2)
	assert.Equal(t, constants.SyncStatusFailed, sum.Outcomes[0].Status)
	assert.Equal(t, StatePersisting, sum.Outcomes[0].FailedIn)
	assert.True(t, common.HasCode(sum.Outcomes[0].Err, common.CodeStorageWrite))
	assert.Equal(t, constants.SyncStatusSaved, sum.Outcomes[1].Status)
	assert.Len(t, n.docs, 1)
}

func TestJob_MissingLastFileIsTreatedAsNoHistory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "123"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "123", constants.PointerFile), []byte(`{"last_name": "2024-01-01.pdf"}`), 0o644))
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": []byte("fresh")}}

	sum := NewJob(fetcher, &recordingNotifier{}, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	assert.Equal(t, constants.SyncStatusSaved, sum.Outcomes[0].Status)
	assert.JSONEq(t, `{"last_name": "2024-03-01.pdf"}`, readLast(t, root, "123"))
}

func TestJob_NotificationFailureKeepsStorage(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": []byte("receipt")}}
	n := &recordingNotifier{err: notify.ErrSend}

	sum := NewJob(fetcher, n, root, []string{"123"}, nil, WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	o := sum.Outcomes[0]
	assert.Equal(t, constants.SyncStatusSaved, o.Status)
	assert.Equal(t, StateDone, o.State)
	assert.False(t, o.Notified)
	assert.NoError(t, o.Err)
	assert.FileExists(t, filepath.Join(root, "123", "2024-03-01.pdf"))
	assert.Len(t, n.messages, 1)
	assert.Len(t, n.docs, 1)
}

func TestJob_RecordsOutcomes(t *testing.T) {
	root := t.TempDir()
	content := []byte("receipt")
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": content}}
	rec := &memRecorder{err: errors.New("ledger offline")}

	sum := NewJob(fetcher, &recordingNotifier{}, root, []string{"123"}, nil,
		WithRecorder(rec), WithClock(fixedClock("2024-03-01"))).Run(context.Background())

	assert.Equal(t, 1, sum.Saved, "ledger failures never affect the sync")
	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, sum.RunID, e.RunID)
	assert.Equal(t, "123", e.Contract)
	assert.Equal(t, constants.SyncStatusSaved, e.Status)
	assert.Equal(t, "2024-03-01.pdf", e.Filename)
	assert.Equal(t, int64(len(content)), e.Size)
	assert.Len(t, e.SHA256, 64)
	assert.Empty(t, e.Error)
}

func TestJob_LogsContractOncePerRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fetcher := &fakeFetcher{receipts: map[string][]byte{"123": []byte("receipt")}}

	NewJob(fetcher, &recordingNotifier{}, t.TempDir(), []string{"123"}, logger).Run(context.Background())

	var storageLines int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"contract":`), 1, line)
		if strings.Contains(line, `"msg":"storage.`) {
			storageLines++
			assert.Contains(t, line, `"contract":"123"`)
		}
	}
	assert.Positive(t, storageLines)
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "123 2024-03-01.pdf", Caption("123", "2024-03-01.pdf"))
}
