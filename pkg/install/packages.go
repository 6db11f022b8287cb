package install

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
)

// DefaultExtraPackages seeds the extra-packages file written by setup.
var DefaultExtraPackages = []string{"pip", "setuptools", "wheel"}

// ReadPackageList reads one package specifier per line. Blank lines and
// '#' comments are ignored. A missing file is an empty list.
func ReadPackageList(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()

	var pkgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		if line = strings.TrimSpace(line); line != "" {
			if err := ValidatePackage(line); err != nil {
				return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "%s", path)
			}
			pkgs = append(pkgs, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeIO, err, "read %s", path)
	}
	return pkgs, nil
}

// ValidatePackage rejects specifiers pip would read as options, and ones
// carrying control characters.
func ValidatePackage(spec string) error {
	if spec == "" {
		return errors.New("empty package specifier")
	}
	if len(spec) > 256 {
		return errors.New("package specifier too long (max 256 characters)")
	}
	if strings.HasPrefix(spec, "-") {
		return fmt.Errorf("package specifier %q looks like an option", spec)
	}
	for _, r := range spec {
		if unicode.IsControl(r) {
			return fmt.Errorf("package specifier %q contains control characters", spec)
		}
	}
	return nil
}

// WritePackageList writes pkgs to path, one per line.
func WritePackageList(path string, pkgs []string) error {
	data := strings.Join(pkgs, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return pserrors.Wrap(pserrors.ErrCodeIO, err, "write %s", path)
	}
	return nil
}
