package reconcile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cosreg/regwatch/pkg/export"
)

// ApplyMode decides whether an incoming table updates the baseline.
type ApplyMode string

const (
	ApplyNone    ApplyMode = "none"
	ApplyReplace ApplyMode = "replace"
	ApplyAppend  ApplyMode = "append"
)

// ParseApplyMode accepts none, replace or append; "" means none.
func ParseApplyMode(s string) (ApplyMode, error) {
	switch m := ApplyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ApplyNone, nil
	case ApplyNone, ApplyReplace, ApplyAppend:
		return m, nil
	}
	return "", fmt.Errorf("unknown apply mode %q (want none, replace or append)", s)
}

// BackupName is the backup file name for brand at now, second resolution.
func BackupName(brand string, now time.Time) string {
	return brand + "__" + now.Format("20060102_150405") + ".csv"
}

// Backup moves path into backupDir under a timestamped name and returns
// the new location. An existing backup is never overwritten.
func Backup(path, backupDir, brand string, now time.Time) (string, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(backupDir, BackupName(brand, now))
	for n := 2; fileExists(dest); n++ {
		dest = filepath.Join(backupDir, fmt.Sprintf("%s__%s_%d.csv", brand, now.Format("20060102_150405"), n))
	}
	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	// Rename fails across devices; fall back to copy and remove.
	if err := copyFile(path, dest); err != nil {
		return "", fmt.Errorf("back up %s: %w", filepath.Base(path), err)
	}
	if err := os.Remove(path); err != nil {
		return dest, fmt.Errorf("remove %s after backup: %w", filepath.Base(path), err)
	}
	return dest, nil
}

// Apply commits incoming as the brand's baseline according to mode. The
// prior baseline is backed up before anything is written; if the write
// fails the backup is moved back. It returns the backup path, if any.
func Apply(mode ApplyMode, baselinePath, backupDir, brand string, base, incoming Table, d Diff, now time.Time) (string, error) {
	var next Table
	switch mode {
	case ApplyNone, "":
		return "", nil
	case ApplyReplace:
		next = incoming
	case ApplyAppend:
		rows := make([][]string, 0, len(base.Rows)+len(d.Added))
		rows = append(rows, base.Rows...)
		rows = append(rows, d.Added...)
		next = Normalize(Table{Columns: base.Columns, Rows: rows})
	default:
		return "", fmt.Errorf("unknown apply mode %q", mode)
	}

	backup, err := Backup(baselinePath, backupDir, brand, now)
	if err != nil {
		return "", err
	}
	if err := export.WriteTable(baselinePath, next.Columns, next.Rows); err != nil {
		if rerr := os.Rename(backup, baselinePath); rerr != nil {
			return backup, errors.Join(fmt.Errorf("write baseline: %w", err), fmt.Errorf("restore backup: %w", rerr))
		}
		return "", fmt.Errorf("write baseline: %w", err)
	}
	return backup, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
