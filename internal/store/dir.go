package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/fsutil"
	"github.com/carewise/carestore/pkg/model"
)

const (
	FormatVersion     = 1
	DirName           = ".carestore"
	FormatVersionFile = "format_version"
	StoreIDFile       = "store_id"

	SessionsDirName = "sessions"
	UsersDirName    = "users"
	AuditDirName    = "audit"
)

// Dir represents an initialized store directory.
type Dir struct {
	Root          string // parent of .carestore/
	StoreDir      string // the .carestore/ directory itself
	FormatVersion int
	StoreID       string
}

// KindDir maps a record kind to its subdirectory name.
func KindDir(kind model.RecordKind) string {
	if kind == model.KindUser {
		return UsersDirName
	}
	return SessionsDirName
}

// RecordPath returns the on-disk path for a record of the file backend. The
// lock coordinator derives marker paths from this even when the sqlite
// backend holds the actual bytes.
func RecordPath(storeDir string, kind model.RecordKind, id string) string {
	return filepath.Join(storeDir, KindDir(kind), id+".json")
}

// Init creates a store directory tree at root.
func Init(root string) (*Dir, error) {
	storeDir := filepath.Join(root, DirName)
	dirs := []string{
		storeDir,
		filepath.Join(storeDir, SessionsDirName),
		filepath.Join(storeDir, UsersDirName),
		filepath.Join(storeDir, AuditDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(storeDir, FormatVersionFile), []byte("1\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	storeID := uuid.NewString()
	if err := os.WriteFile(filepath.Join(storeDir, StoreIDFile), []byte(storeID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write store_id: %w", err)
	}

	if err := fsutil.FsyncDir(root); err != nil {
		return nil, fmt.Errorf("fsync store root: %w", err)
	}

	return &Dir{
		Root:          root,
		StoreDir:      storeDir,
		FormatVersion: FormatVersion,
		StoreID:       storeID,
	}, nil
}

// Discover walks up from path to find the store root (directory containing
// .carestore/).
func Discover(path string) (*Dir, error) {
	for {
		storeDir := filepath.Join(path, DirName)
		if info, err := os.Stat(storeDir); err == nil && info.IsDir() {
			version, err := readFormatVersion(storeDir)
			if err != nil {
				return nil, err
			}
			if version > FormatVersion {
				return nil, errclass.ErrFormatUnsupported.WithMessagef(
					"format version %d > supported %d", version, FormatVersion)
			}
			storeID, _ := readStoreID(storeDir)
			return &Dir{
				Root:          path,
				StoreDir:      storeDir,
				FormatVersion: version,
				StoreID:       storeID,
			}, nil
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no carestore directory found (no %s/ in parent directories)", DirName)
		}
		path = parent
	}
}

func readFormatVersion(storeDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(storeDir, FormatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return version, nil
}

func readStoreID(storeDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(storeDir, StoreIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
