// Package artifacts persists audit artifact bundles to a directory and loads
// them back.
//
// A bundle directory holds a zstd-compressed JSON manifest plus one file per
// binary blob:
//
//	<dir>/artifacts.json.zst
//	<dir>/blobs/000.png
//	<dir>/blobs/001.html
//
// Workers write bundles into a fresh temporary directory and hand its path to
// the orchestrator, which loads the bundle and removes the directory.
package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/auditrunner/internal/audit"
)

const (
	manifestFile    = "artifacts.json.zst"
	blobDir         = "blobs"
	manifestVersion = 1
)

var (
	ErrNilArtifacts = errors.New("nil artifacts")
	ErrCorrupt      = errors.New("corrupt artifact bundle")
)

// HTML stays unescaped so raw JSON artifacts round-trip byte for byte.
var codec = sonic.Config{
	CompactMarshaler: true,
	SortMapKeys:      true,
	ValidateString:   true,
	CopyString:       true,
}.Froze()

// Store saves and loads artifact bundles.
type Store interface {
	Save(a *audit.Artifacts, dir string) error
	Load(dir string) (*audit.Artifacts, error)
}

// BlobInfo describes one persisted blob.
type BlobInfo struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type manifest struct {
	Version   int              `json:"version"`
	Artifacts *audit.Artifacts `json:"artifacts"`
	Blobs     []BlobInfo       `json:"blobs,omitempty"`
}

// DiskStore persists bundles on the local filesystem.
type DiskStore struct {
	Level zstd.EncoderLevel
}

// NewDiskStore creates a store using the default compression level.
func NewDiskStore() *DiskStore {
	return &DiskStore{Level: zstd.SpeedDefault}
}

// Save writes a into dir, which must exist.
func (s *DiskStore) Save(a *audit.Artifacts, dir string) error {
	if a == nil {
		return ErrNilArtifacts
	}

	names := make([]string, 0, len(a.Blobs))
	for name := range a.Blobs {
		names = append(names, name)
	}
	sort.Strings(names)

	m := manifest{Version: manifestVersion, Artifacts: a}
	if len(names) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, blobDir), 0o755); err != nil {
			return fmt.Errorf("create blob dir: %w", err)
		}
	}
	for i, name := range names {
		data := a.Blobs[name]
		mt := mimetype.Detect(data)
		ext := mt.Extension()
		if ext == "" {
			ext = ".bin"
		}
		info := BlobInfo{
			Name:        name,
			File:        filepath.ToSlash(filepath.Join(blobDir, fmt.Sprintf("%03d%s", i, ext))),
			ContentType: mt.String(),
			Size:        len(data),
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(info.File)), data, 0o644); err != nil {
			return fmt.Errorf("write blob %s: %w", name, err)
		}
		m.Blobs = append(m.Blobs, info)
	}

	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.writeCompressed(filepath.Join(dir, manifestFile), data)
}

func (s *DiskStore) writeCompressed(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	level := s.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	return f.Close()
}

// Load reads the bundle stored in dir.
func (s *DiskStore) Load(dir string) (*audit.Artifacts, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.Version != manifestVersion || m.Artifacts == nil {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", ErrCorrupt, m.Version)
	}

	a := m.Artifacts
	if len(m.Blobs) > 0 {
		a.Blobs = make(map[string][]byte, len(m.Blobs))
	}
	for _, info := range m.Blobs {
		path, err := blobPath(dir, info.File)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read blob %s: %w", info.Name, err)
		}
		if len(data) != info.Size {
			return nil, fmt.Errorf("%w: blob %s has %d bytes, want %d", ErrCorrupt, info.Name, len(data), info.Size)
		}
		a.Blobs[info.Name] = data
	}
	return a, nil
}

// readManifest decodes the manifest of the bundle in dir.
func readManifest(dir string) (*manifest, error) {
	raw, err := readCompressed(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := codec.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &m, nil
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf.Bytes(), nil
}

// blobPath resolves a manifest file entry, refusing paths outside dir.
func blobPath(dir, file string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(file))
	if filepath.IsAbs(rel) || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("%w: blob path %q escapes bundle", ErrCorrupt, file)
	}
	return filepath.Join(dir, rel), nil
}
