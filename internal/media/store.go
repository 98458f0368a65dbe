package media

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tidewatch.in/hazard/internal/globaltime"
)

// Store resolves uploaded report media into stable filename identifiers. The
// rest of the pipeline treats those identifiers as opaque; only the store
// knows where bytes live.
type Store interface {
	Save(name string, r io.Reader) (string, error)
	List() ([]string, error)
}

// DiskStore keeps media as flat files under one directory, the same layout
// the static uploads route serves.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("media directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Dir() string {
	return s.dir
}

// Save writes the upload and returns its stable identifier. The identifier
// embeds a timestamp and random suffix so concurrent uploads of files with
// the same client-side name never collide.
func (s *DiskStore) Save(name string, r io.Reader) (string, error) {
	identifier, err := stableName(name)
	if err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(s.dir, identifier))
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	return identifier, nil
}

// List returns the stored identifiers in lexical order.
func (s *DiskStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read media directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func stableName(name string) (string, error) {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate media suffix: %w", err)
	}

	base := filepath.Base(strings.TrimSpace(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "upload"
	}

	return fmt.Sprintf("%d-%s-%s", globaltime.UTC().UnixMilli(), hex.EncodeToString(suffix), base), nil
}
