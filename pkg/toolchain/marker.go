package toolchain

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// MarkerFile is the provenance marker Finalize writes into every
// self-built install directory.
const MarkerFile = ".pyshim-installed"

// Marker is the content of [MarkerFile].
type Marker struct {
	Version        string    `toml:"version"`
	Manager        string    `toml:"manager"`
	ManagerVersion string    `toml:"manager_version"`
	InstalledAt    time.Time `toml:"installed_at"`
}

// WriteMarker records provenance in installDir.
func WriteMarker(installDir string, m Marker) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(installDir, MarkerFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// ReadMarker loads the marker from installDir. ok is false when the
// directory carries none.
func ReadMarker(installDir string) (m Marker, ok bool, err error) {
	_, err = toml.DecodeFile(filepath.Join(installDir, MarkerFile), &m)
	if errors.Is(err, os.ErrNotExist) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("read marker: %w", err)
	}
	return m, true, nil
}

// HasMarker reports whether installDir was built by pyshim.
func HasMarker(installDir string) bool {
	_, err := os.Stat(filepath.Join(installDir, MarkerFile))
	return err == nil
}
