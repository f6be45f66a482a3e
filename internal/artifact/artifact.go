// Package artifact persists analyzer transcripts so failed runs can be
// re-verified offline. Transcripts are stored zstd-compressed, one file
// per run.
package artifact

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mstaack/sw-usb-audio/internal/devicelock"
)

const transcriptSuffix = ".log.zst"

// Store manages compressed transcripts under a single directory.
type Store struct {
	dir string
}

// NewStore creates a transcript store rooted at dir. The directory is
// created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the deterministic transcript path for a run ID.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.dir, runID+transcriptSuffix)
}

// Save compresses the transcript lines into <dir>/<runID>.log.zst. The
// archive is written atomically so a crash mid-save never leaves a
// truncated file at the final path. Returns the transcript path.
func (s *Store) Save(runID string, lines []string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}

	for _, line := range lines {
		if _, err := io.WriteString(encoder, line+"\n"); err != nil {
			encoder.Close()
			return "", fmt.Errorf("compress: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}

	destPath := s.Path(runID)
	if err := devicelock.AtomicWrite(destPath, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	return destPath, nil
}

// Load reads back the transcript for a run ID.
func (s *Store) Load(runID string) ([]string, error) {
	return ReadTranscript(s.Path(runID))
}

// List returns the run IDs of all stored transcripts, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, transcriptSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, transcriptSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// PruneOlderThan removes transcripts whose modification time is older
// than maxAge. Returns the number of transcripts removed.
func (s *Store) PruneOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read artifact dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), transcriptSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("stat transcript %s: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove transcript %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// ReadTranscript reads transcript lines from a file, decompressing when
// the path carries a .zst suffix. Plain analyzer logs are accepted as-is
// so captured output can be verified without archiving it first.
func ReadTranscript(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		data, err = io.ReadAll(decoder)
		decoder.Close()
		if err != nil {
			return nil, fmt.Errorf("decompress transcript: %w", err)
		}
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return lines, nil
}
