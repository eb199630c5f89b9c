// Package store persists the paired caller MSISDN. The record mirrors
// the trackers non-volatile scratch area: exactly 20 bytes at offset zero,
// the number NUL-padded to the record size. There is no checksum; a write
// torn by power loss is accepted as-is on the next boot, matching the
// hardware the layout comes from.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// RecordSize is the size of the scratch area. One MSISDN plus NUL fits
// the longest E.164 number with room to spare.
const RecordSize = 20

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the stored MSISDN. A missing file means factory default:
// empty string, no error.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read caller store: %w", err)
	}

	if len(data) > RecordSize {
		data = data[:RecordSize]
	}

	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

// Save overwrites the record with the given MSISDN, truncated to fit the
// scratch area with its terminating NUL, padded to the full record size.
func (s *Store) Save(msisdn string) error {
	if len(msisdn) > RecordSize-1 {
		msisdn = msisdn[:RecordSize-1]
	}

	record := make([]byte, RecordSize)
	copy(record, msisdn)

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	if err := os.WriteFile(s.path, record, 0600); err != nil {
		return fmt.Errorf("write caller store: %w", err)
	}
	return nil
}
