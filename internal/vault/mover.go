// Package vault implements backup-guarded note relocation. Every move is
// preceded by a backup copy and rolled back from it on failure, so a note
// is never left half-moved or missing.
package vault

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inneros/inneros/internal/apperr"
)

// BackupRecord describes the backup taken before a move. Backups are
// retained after a successful move; pruning them is not this package's job.
type BackupRecord struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// MoveFailedError wraps the underlying cause of a failed move after the
// source has been restored from backup.
type MoveFailedError struct {
	Source string
	Dest   string
	Err    error
}

func (e *MoveFailedError) Error() string {
	return fmt.Sprintf("vault: move %s -> %s failed (source restored from backup): %v", e.Source, e.Dest, e.Err)
}

func (e *MoveFailedError) Unwrap() error { return e.Err }

// Mover relocates files within the vault with pre-move backup and
// rollback-on-failure. It is the single path through which all note
// relocations must pass.
type Mover struct {
	root      string // absolute vault root
	backupDir string // absolute backup directory
	logger    *slog.Logger

	// rename is swapped in tests to simulate mid-move failures.
	rename func(oldpath, newpath string) error
	now    func() time.Time
}

// NewMover creates a Mover rooted at the vault directory. backupDir may be
// relative to the vault root; it is created if missing.
func NewMover(root, backupDir string, logger *slog.Logger) (*Mover, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", absRoot)
	}
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(absRoot, backupDir)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("vault: create backup dir: %w", err)
	}
	return &Mover{
		root:      absRoot,
		backupDir: backupDir,
		logger:    logger,
		rename:    os.Rename,
		now:       time.Now,
	}, nil
}

// Move relocates the file at srcRel to destRel (both vault-relative):
//
//  1. fail fast if a file already exists at the destination,
//  2. copy the source to a timestamped backup,
//  3. rename,
//  4. on rename failure, restore the source from the backup and return
//     a MoveFailedError wrapping the cause.
//
// The returned BackupRecord points at the retained backup copy.
func (m *Mover) Move(srcRel, destRel string) (*BackupRecord, error) {
	src, err := m.resolve(srcRel)
	if err != nil {
		return nil, err
	}
	dest, err := m.resolve(destRel)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("vault: source %s: %w", srcRel, err)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("vault: %s: %w", destRel, apperr.ErrDestinationExists)
	}

	rec, err := m.backup(src, srcRel)
	if err != nil {
		return nil, fmt.Errorf("vault: backup %s: %w", srcRel, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("vault: create dest dir: %w", err)
	}

	if err := m.rename(src, dest); err != nil {
		m.restore(rec, src)
		return nil, &MoveFailedError{Source: srcRel, Dest: destRel, Err: err}
	}

	m.logger.Debug("vault: moved",
		slog.String("from", srcRel),
		slog.String("to", destRel),
		slog.String("backup", rec.BackupPath))
	return rec, nil
}

// Restore undoes a completed move: the backup copy goes back to its
// original path and the moved file at destRel is removed. Callers use this
// when work that had to follow the move fails, so a note never stays at the
// destination in its pre-move state. The original is written back before the
// destination is removed, so the note is never missing from both places.
func (m *Mover) Restore(rec *BackupRecord, destRel string) error {
	src, err := m.resolve(rec.OriginalPath)
	if err != nil {
		return err
	}
	dest, err := m.resolve(destRel)
	if err != nil {
		return err
	}

	if err := copyFile(rec.BackupPath, src); err != nil {
		return fmt.Errorf("vault: restore %s from backup: %w", rec.OriginalPath, err)
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: remove moved copy %s: %w", destRel, err)
	}

	m.logger.Warn("vault: move undone",
		slog.String("restored", rec.OriginalPath),
		slog.String("removed", destRel))
	return nil
}

// backup copies src into the backup directory under a timestamped name.
func (m *Mover) backup(src, srcRel string) (*BackupRecord, error) {
	ts := m.now()
	name := fmt.Sprintf("%s-%s", ts.Format("20060102-150405.000"), filepath.Base(srcRel))
	backupPath := filepath.Join(m.backupDir, name)

	if err := copyFile(src, backupPath); err != nil {
		return nil, err
	}
	return &BackupRecord{
		OriginalPath: srcRel,
		BackupPath:   backupPath,
		CreatedAt:    ts,
	}, nil
}

// restore puts the backup copy back at the original location if the move
// left the source missing.
func (m *Mover) restore(rec *BackupRecord, src string) {
	if _, err := os.Stat(src); err == nil {
		return // source still intact
	}
	if err := copyFile(rec.BackupPath, src); err != nil {
		m.logger.Error("vault: restore from backup failed",
			slog.String("backup", rec.BackupPath),
			slog.String("original", rec.OriginalPath),
			slog.String("error", err.Error()))
		return
	}
	m.logger.Warn("vault: restored from backup", slog.String("path", rec.OriginalPath))
}

// resolve joins rel against the root and rejects traversal outside it.
func (m *Mover) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("vault: invalid path: %q", rel)
	}
	abs, err := filepath.Abs(filepath.Join(m.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, m.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("vault: path escapes vault root: %s", rel)
	}
	return abs, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
