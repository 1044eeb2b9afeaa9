// Package storage keeps the per-contract receipt directory: dated receipt
// documents plus a small last.json record naming the most recently saved one.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/receipt-sync/constants"
)

const lastNameKey = "last_name"

var (
	// ErrNoHistory means the contract has no pointer record yet.
	ErrNoHistory = errors.New("no receipt history")
	// ErrCorruptPointer means the pointer record exists but cannot be used.
	ErrCorruptPointer = errors.New("last receipt record is corrupt")
	// ErrMissingReceipt means the pointer names a file that cannot be read.
	ErrMissingReceipt = errors.New("last receipt file is missing")
	// ErrWrite wraps every failure to persist a receipt or the pointer.
	ErrWrite = errors.New("write receipt storage")
	// ErrInvalidName rejects filenames that are not plain names inside the namespace.
	ErrInvalidName = errors.New("invalid receipt filename")
)

// Pointer is the decoded last.json record.
type Pointer struct {
	LastName string
	fields   map[string]any
}

// Fields returns a copy of every key in the record, including unknown ones.
func (p Pointer) Fields() map[string]any {
	out := make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		out[k] = v
	}
	return out
}

// Store is the receipt namespace of one contract.
type Store struct {
	dir      string
	contract string
	permFile os.FileMode
	permDir  os.FileMode
	logger   *slog.Logger
}

// ForContract returns the store rooted at root/contract. Nothing is created on disk
// until a receipt is saved. logger is used as is; callers tag it with the contract.
func ForContract(root, contract string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      filepath.Join(root, contract),
		contract: contract,
		permFile: 0o644,
		permDir:  0o755,
		logger:   logger,
	}
}

// Dir returns the namespace directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute-or-relative path of name inside the namespace.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) pointerPath() string { return s.Path(constants.PointerFile) }

// Pointer reads and validates the record. It returns ErrNoHistory when the
// record does not exist and ErrCorruptPointer when it is unreadable or malformed.
func (s *Store) Pointer() (Pointer, error) {
	raw, err := os.ReadFile(s.pointerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Pointer{}, ErrNoHistory
		}
		return Pointer{}, fmt.Errorf("%w: read %s: %v", ErrCorruptPointer, s.pointerPath(), err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Pointer{}, fmt.Errorf("%w: decode %s: %v", ErrCorruptPointer, s.pointerPath(), err)
	}
	if err := validatePointer(doc); err != nil {
		return Pointer{}, fmt.Errorf("%w: %s: %v", ErrCorruptPointer, s.pointerPath(), err)
	}

	fields := doc.(map[string]any)
	return Pointer{LastName: fields[lastNameKey].(string), fields: fields}, nil
}

// LastFilename returns the name of the last saved receipt. Any read or parse
// failure is reported as no history; corrupt records are logged.
func (s *Store) LastFilename() (string, bool) {
	p, err := s.Pointer()
	switch {
	case err == nil:
		return p.LastName, true
	case errors.Is(err, ErrNoHistory):
		return "", false
	default:
		s.logger.Warn("storage.pointer.corrupt", "path", s.pointerPath(), "error", err)
		return "", false
	}
}

// LastContent returns the bytes of the last saved receipt, or nil when there is
// no usable history. A pointer naming an unreadable file yields ErrMissingReceipt.
func (s *Store) LastContent() ([]byte, error) {
	name, ok := s.LastFilename()
	if !ok {
		return nil, nil
	}
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingReceipt, path, err)
	}
	return data, nil
}

// SaveReceipt durably writes data as name inside the namespace, creating the
// directory if needed, and returns the written path.
func (s *Store) SaveReceipt(name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, s.permDir); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrWrite, s.dir, err)
	}
	if err := writeFileAtomic(s.dir, name, data, s.permFile); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWrite, s.Path(name), err)
	}
	s.logger.Debug("storage.receipt.saved", "path", s.Path(name), "size", len(data))
	return s.Path(name), nil
}

// UpdateLast points the record at name, keeping any other keys of an existing
// valid record. name must already exist in the namespace. Calling it again with
// the same name leaves the record unchanged.
func (s *Store) UpdateLast(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.Path(name)); err != nil {
		return fmt.Errorf("%w: pointer target %s: %v", ErrWrite, s.Path(name), err)
	}

	fields := map[string]any{}
	p, err := s.Pointer()
	switch {
	case err == nil:
		fields = p.fields
	case errors.Is(err, ErrNoHistory):
	default:
		s.logger.Warn("storage.pointer.overwrite_corrupt", "path", s.pointerPath(), "error", err)
	}
	fields[lastNameKey] = name

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode pointer: %v", ErrWrite, err)
	}
	if err := writeFileAtomic(s.dir, constants.PointerFile, raw, s.permFile); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, s.pointerPath(), err)
	}
	s.logger.Debug("storage.pointer.updated", "last_name", name)
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || name == constants.PointerFile {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
