// Package doctor inspects a store directory for residue left by crashes.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carewise/carestore/internal/audit"
	"github.com/carewise/carestore/internal/store"
	"github.com/carewise/carestore/pkg/fsutil"
	"github.com/carewise/carestore/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // warning, error
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs store health checks.
type Doctor struct {
	storeDir string
}

// NewDoctor creates a doctor for the given .carestore directory.
func NewDoctor(storeDir string) *Doctor {
	return &Doctor{storeDir: storeDir}
}

// Check runs all diagnostic checks. With fix set, stale lock markers and
// leftover temporaries are removed and corrupt records deleted.
func (d *Doctor) Check(fix bool) (*Result, error) {
	var findings []Finding

	for _, sub := range []string{store.SessionsDirName, store.UsersDirName} {
		dir := filepath.Join(d.storeDir, sub)

		f, err := d.checkTempFiles(dir, fix)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f...)

		f, err = d.checkLockMarkers(dir, fix)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f...)

		f, err = d.checkRecords(dir, fix)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f...)
	}

	f, err := d.checkAuditChain()
	if err != nil {
		return nil, err
	}
	findings = append(findings, f...)

	return &Result{Healthy: len(findings) == 0, Findings: findings}, nil
}

// checkTempFiles reports atomic-write temporaries left by crashed writers.
func (d *Doctor) checkTempFiles(dir string, fix bool) ([]Finding, error) {
	stale, err := fsutil.ListTempFiles(dir)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, path := range stale {
		desc := "leftover temporary file from an interrupted write"
		if fix {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove temp file: %w", err)
			}
			desc += " (removed)"
		}
		findings = append(findings, Finding{
			Category:    "temp_file",
			Description: desc,
			Severity:    "warning",
			Path:        path,
		})
	}
	return findings, nil
}

// checkLockMarkers reports markers whose lease has lapsed.
func (d *Doctor) checkLockMarkers(dir string, fix bool) ([]Finding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	now := time.Now()
	var findings []Finding
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec model.LockRecord
		stale := false
		desc := ""
		if err := json.Unmarshal(data, &rec); err != nil {
			stale = true
			desc = "unparseable lock marker"
		} else if rec.IsExpired(now) {
			stale = true
			desc = fmt.Sprintf("expired lock marker (holder pid %d)", rec.PID)
		}
		if !stale {
			continue
		}
		if fix {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove lock marker: %w", err)
			}
			desc += " (removed)"
		}
		findings = append(findings, Finding{
			Category:    "stale_lock",
			Description: desc,
			Severity:    "warning",
			Path:        path,
		})
	}
	return findings, nil
}

// checkRecords reports record files that no longer parse.
func (d *Doctor) checkRecords(dir string, fix bool) ([]Finding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var findings []Finding
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasPrefix(name, fsutil.TempPrefix) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if json.Valid(data) {
			continue
		}
		desc := "record content does not parse"
		if fix {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove corrupt record: %w", err)
			}
			desc += " (removed; record resets to empty)"
		}
		findings = append(findings, Finding{
			Category:    "corrupt_record",
			Description: desc,
			Severity:    "error",
			Path:        path,
		})
	}
	return findings, nil
}

// checkAuditChain verifies the audit log hash chain.
func (d *Doctor) checkAuditChain() ([]Finding, error) {
	path := filepath.Join(d.storeDir, store.AuditDirName, "audit.jsonl")
	appender := audit.NewFileAppender(path)
	if _, err := appender.Verify(); err != nil {
		return []Finding{{
			Category:    "audit_chain",
			Description: err.Error(),
			Severity:    "error",
			Path:        path,
		}}, nil
	}
	return nil, nil
}
