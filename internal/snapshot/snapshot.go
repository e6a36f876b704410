// Package snapshot streams full copies of the store in and out as
// xz-compressed Badger backup streams, for offsite copies of the database
// itself (the payloads inside are already client-side encrypted).
package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/gavlu/dailyreps-backup-server/internal/keyValStore"
)

// Status describes the most recent export.
type Status struct {
	InProgress  bool
	LastVersion uint64
}

// Manager produces and restores snapshots. One export runs at a time; the
// HTTP layer serializes calls.
type Manager struct {
	kv     *keyValStore.KeyValStore
	status Status
}

func NewManager(kv *keyValStore.KeyValStore) *Manager {
	return &Manager{kv: kv}
}

// Export writes a compressed snapshot of the whole store to w. The context
// is checked before the stream starts; once Badger is producing the backup
// it runs to completion so the stream is never truncated mid-record.
func (m *Manager) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.status.InProgress = true
	defer func() { m.status.InProgress = false }()

	xzWriter, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}

	version, err := m.kv.Backup(xzWriter)
	if err != nil {
		return fmt.Errorf("streaming store backup: %w", err)
	}

	if err := xzWriter.Close(); err != nil {
		return fmt.Errorf("finishing xz stream: %w", err)
	}

	m.status.LastVersion = version
	return nil
}

// Restore loads a snapshot produced by Export. Intended for an empty store;
// Badger applies the stream on top of whatever is present.
func (m *Manager) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	xzReader, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating xz reader: %w", err)
	}

	if err := m.kv.Load(xzReader); err != nil {
		return fmt.Errorf("loading store backup: %w", err)
	}

	return nil
}

// GetStatus returns the current snapshot status.
func (m *Manager) GetStatus() Status {
	return m.status
}
