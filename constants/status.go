package constants

// SyncStatus is the canonical outcome recorded for one contract in one run.
type SyncStatus string

// Stable values (store these exact strings in the ledger).
const (
	SyncStatusSaved     SyncStatus = "SAVED"     // new receipt written and pointer updated
	SyncStatusUnchanged SyncStatus = "UNCHANGED" // fetched receipt matches the last one
	SyncStatusFailed    SyncStatus = "FAILED"    // terminal failure for this contract
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusSaved, SyncStatusUnchanged, SyncStatusFailed:
		return true
	}
	return false
}
