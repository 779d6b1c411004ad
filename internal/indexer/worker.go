package indexer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/pool"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/hashicorp/go-multierror"
)

const (
	// readChunkBytes is the read size; the run context is checked between
	// chunks. Lines may be of any length.
	readChunkBytes = 64 << 10
	// maxRecordedErrors caps RunReport.FileErrors. Failures past the cap
	// are still counted and logged.
	maxRecordedErrors = 100
)

// runStats is shared by every walker of one run.
type runStats struct {
	filesIndexed atomic.Int64
	filesFailed  atomic.Int64

	mu       sync.Mutex
	errs     *multierror.Error
	recorded int
}

func (s *runStats) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorded >= maxRecordedErrors {
		return
	}
	s.recorded++
	s.errs = multierror.Append(s.errs, err)
}

func (s *runStats) errors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}

// fileOpener opens a document for reading.
type fileOpener func(path string) (io.ReadCloser, error)

func openOS(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// walker indexes one subtree of the dataset. Child directories are offered
// to the run's pool and walked inline when no slot is free, so a walker never
// waits on the pool and deep trees cannot deadlock it.
//
// Symbolic links are followed. A directory that is the same file as one of
// its ancestors is skipped, which ends symlink cycles.
type walker struct {
	store      *index.Store
	run        *pool.Run
	extensions []string
	open       fileOpener
	stats      *runStats
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// walk indexes dir. ancestors holds the directories above dir on the
// current path, outermost first.
func (w *walker) walk(ctx context.Context, dir string, ancestors []os.FileInfo) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		w.logger.Warn("cannot stat directory", "path", dir, "error", err)
		w.stats.record(fmt.Errorf("stat %s: %w", dir, err))
		return
	}
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			w.logger.Debug("skipping directory cycle", "path", dir)
			return
		}
	}
	chain := append(ancestors[:len(ancestors):len(ancestors)], info)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("cannot list directory", "path", dir, "error", err)
		w.stats.record(fmt.Errorf("listing %s: %w", dir, err))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, entry.Name())
		isDir, isRegular, ok := resolveEntry(path, entry, w.logger)
		if !ok {
			continue
		}
		switch {
		case isDir:
			if !w.run.TryGo(func(ctx context.Context) { w.walk(ctx, path, chain) }) {
				w.walk(ctx, path, chain)
			}
		case isRegular && w.accepts(entry.Name()):
			w.indexFile(ctx, path)
		}
	}
}

// resolveEntry reports what entry is, following a symbolic link to its
// target. ok is false for a dangling link.
func resolveEntry(path string, entry fs.DirEntry, log *slog.Logger) (isDir, isRegular, ok bool) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir(), entry.Type().IsRegular(), true
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Debug("skipping dangling symlink", "path", path, "error", err)
		return false, false, false
	}
	return info.IsDir(), info.Mode().IsRegular(), true
}

func (w *walker) accepts(name string) bool {
	for _, ext := range w.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// indexFile counts every term of path and merges the counts into the store
// in one batch. A file that fails to read contributes nothing, and neither
// does one still being read when the run ends.
func (w *walker) indexFile(ctx context.Context, path string) {
	counts, err := w.countFile(ctx, path)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		w.stats.filesFailed.Add(1)
		w.stats.record(err)
		w.metrics.FileFailed()
		w.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return
	}
	w.store.UpdateBatch(path, counts)
	w.stats.filesIndexed.Add(1)
	w.metrics.FileIndexed()
}

func (w *walker) countFile(ctx context.Context, path string) (map[string]int, error) {
	f, err := w.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	counts, err := countTerms(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return counts, nil
}

// countTerms reads r to the end in fixed-size chunks and returns its term
// counts. It stops with the context's cause once ctx ends.
func countTerms(ctx context.Context, r io.Reader) (map[string]int, error) {
	counts := make(map[string]int)
	counter := tokenizer.NewCounter(counts)
	buf := make([]byte, readChunkBytes)
	for {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		n, err := r.Read(buf)
		counter.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	counter.Flush()
	return counts, nil
}
