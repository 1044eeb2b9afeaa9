package receipts

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-sync/constants"
)

// State is where a contract is in one pass of the job.
type State string

const (
	StateFetching   State = "FETCHING"
	StateComparing  State = "COMPARING"
	StateUnchanged  State = "UNCHANGED"
	StatePersisting State = "PERSISTING"
	StateNotifying  State = "NOTIFYING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Outcome is the result of processing one contract.
type Outcome struct {
	Contract   string
	Status     constants.SyncStatus
	State      State // last state reached; FailedIn holds where a failure happened
	FailedIn   State
	Filename   string
	Path       string
	Size       int
	SHA256     string
	Similarity float64
	Notified   bool
	Err        error
}

// Summary is returned by Job.Run.
type Summary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
	Saved      int
	Unchanged  int
	Failed     int
	// Err is set only for run-level failures such as a rejected login.
	Err error
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case constants.SyncStatusSaved:
		s.Saved++
	case constants.SyncStatusUnchanged:
		s.Unchanged++
	default:
		s.Failed++
	}
}
