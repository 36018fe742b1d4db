package extract

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultWorkers bounds extraction concurrency when the caller does not.
const defaultWorkers = 4

// Failure records one file that could not be read or parsed. The scan
// continues past failures; they never abort the corpus.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanResult is the outcome of extracting a whole directory tree.
type ScanResult struct {
	Files    []*CodeFile `json:"files"`
	Failures []Failure   `json:"failures,omitempty"`
}

// ScanOptions configures a corpus scan.
type ScanOptions struct {
	// ExcludeDirs are directory basenames skipped during the walk.
	// node_modules and .git are always skipped.
	ExcludeDirs []string

	// Workers bounds extraction concurrency. Zero means defaultWorkers.
	Workers int
}

// Scanner walks a directory tree and extracts every recognized source file.
// Each file's extraction is independent, so files are processed on a bounded
// worker pool; the result is sorted by path so output does not depend on
// walk or completion order.
type Scanner struct {
	extractor *Extractor
	log       *slog.Logger
}

// NewScanner creates a Scanner around the given extractor. A nil logger
// falls back to slog.Default.
func NewScanner(extractor *Extractor, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{extractor: extractor, log: log}
}

// Scan extracts all recognized source files under root. A root that does not
// exist yields an empty result, not an error. Paths in the result are
// relative to root.
func (s *Scanner) Scan(ctx context.Context, root string, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if _, err := os.Stat(root); err != nil {
		s.log.Warn("scan root not accessible, returning empty corpus", "root", root, "err", err)
		return result, nil
	}

	exclude := map[string]bool{"node_modules": true, ".git": true}
	for _, d := range opts.ExcludeDirs {
		exclude[d] = true
	}

	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if d.IsDir() {
			if exclude[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := ExtToLanguage[extOf(path)]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)

			source, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				result.Failures = append(result.Failures, Failure{Path: rel, Reason: "read: " + err.Error()})
				mu.Unlock()
				return nil
			}

			file, err := s.extractor.Extract(rel, source)
			if err != nil {
				mu.Lock()
				result.Failures = append(result.Failures, Failure{Path: rel, Reason: "extract: " + err.Error()})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result.Files = append(result.Files, file)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Path < result.Failures[j].Path })

	if len(result.Failures) > 0 {
		s.log.Warn("some files skipped during scan", "root", root, "skipped", len(result.Failures))
	}
	return result, nil
}
