package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fsDetector reports the filesystem type name for an existing path.
type fsDetector func(path string) (string, error)

var remoteFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// checkLocalFilesystem refuses state databases that live on a network mount.
// The database file itself may not exist yet, so the nearest existing
// ancestor is inspected instead.
func checkLocalFilesystem(dbPath string, detect fsDetector) error {
	probe, err := existingAncestor(dbPath)
	if err != nil {
		return fmt.Errorf("resolve state path %q: %w", dbPath, err)
	}

	fsType, err := detect(probe)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}

	if isRemoteFilesystem(fsType) {
		return fmt.Errorf("state path %q is on network filesystem %q: SQLite needs a local disk for file locking; point state.path at a local file", dbPath, fsType)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for dir := abs; ; dir = filepath.Dir(dir) {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return dir, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", dir, err)
		case filepath.Dir(dir) == dir:
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
	}
}

func isRemoteFilesystem(fsType string) bool {
	return remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
}
