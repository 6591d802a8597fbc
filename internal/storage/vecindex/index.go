package vecindex

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const (
	vectorsFile = "index.bin"
	metaFile    = "index.meta"
	lockFile    = "index.lock"
)

var ErrDimension = errors.New("vector dimension mismatch")

// Entry is the metadata stored alongside each vector.
type Entry struct {
	Text   string `msgpack:"text"`
	Source string `msgpack:"source"`
}

type Hit struct {
	Entry
	Distance float32
}

// Index is a flat L2 index. Vectors are kept in one contiguous slice,
// row i occupying [i*dim, (i+1)*dim).
//
// Several processes may open the same directory (the server and `kai
// ingest`). Writers hold an exclusive flock on index.lock and reload the
// files first when another process replaced them; readers pick up such
// changes on their next call.
type Index struct {
	mu      sync.RWMutex
	dir     string
	fixed   int
	dim     int
	vectors []float32
	meta    []Entry
	seen    stamp
}

// Open loads the index persisted in dir. A missing index starts empty; an
// unreadable or inconsistent one is discarded and also starts empty.
// A dim of zero lets the first Add fix the dimension.
func Open(ctx context.Context, dir string, dim int) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	idx := &Index{dir: dir, fixed: dim, dim: dim}
	logger := log.FromCtx(ctx)

	err := idx.withFileLock(false, func() error {
		idx.seen = readStamp(dir)

		vectors, meta, storedDim, err := load(dir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Debug().Str("dir", dir).Msg("no persisted index, starting empty")
		case err != nil:
			logger.Warn().Err(err).Str("dir", dir).Msg("persisted index is corrupt, starting empty")
		case dim != 0 && storedDim != 0 && storedDim != dim:
			logger.Warn().Int("stored", storedDim).Int("configured", dim).Msg("persisted index dimension differs, starting empty")
		default:
			idx.vectors = vectors
			idx.meta = meta
			if storedDim != 0 {
				idx.dim = storedDim
			}
			logger.Info().Int("chunks", len(meta)).Int("dim", idx.dim).Msg("vector index loaded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) Len() int {
	i.refresh()
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.meta)
}

func (i *Index) Dim() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// Add appends chunks and persists the index under the write lock.
// Nothing is kept if persisting fails.
func (i *Index) Add(chunks []core.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	return i.withFileLock(true, func() error {
		if err := i.syncLocked(); err != nil {
			return err
		}
		return i.addLocked(chunks)
	})
}

func (i *Index) addLocked(chunks []core.KnowledgeChunk) error {
	dim := i.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim || dim == 0 {
			return fmt.Errorf("%w: want %d, got %d", ErrDimension, dim, len(c.Embedding))
		}
	}

	prevDim, prevVectors, prevMeta := i.dim, len(i.vectors), len(i.meta)

	i.dim = dim
	for _, c := range chunks {
		i.vectors = append(i.vectors, c.Embedding...)
		i.meta = append(i.meta, Entry{Text: c.Text, Source: c.Source})
	}

	if err := i.persist(); err != nil {
		i.dim = prevDim
		i.vectors = i.vectors[:prevVectors]
		i.meta = i.meta[:prevMeta]
		return err
	}
	return nil
}

// RemoveSource drops every chunk ingested from source and persists the
// rebuilt index. It returns the number of removed chunks.
func (i *Index) RemoveSource(source string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var removed int
	err := i.withFileLock(true, func() error {
		if err := i.syncLocked(); err != nil {
			return err
		}
		var err error
		removed, err = i.removeLocked(source)
		return err
	})
	return removed, err
}

func (i *Index) removeLocked(source string) (int, error) {
	vectors := make([]float32, 0, len(i.vectors))
	meta := make([]Entry, 0, len(i.meta))
	for row, e := range i.meta {
		if e.Source == source {
			continue
		}
		vectors = append(vectors, i.vectors[row*i.dim:(row+1)*i.dim]...)
		meta = append(meta, e)
	}

	removed := len(i.meta) - len(meta)
	if removed == 0 {
		return 0, nil
	}

	prevVectors, prevMeta := i.vectors, i.meta
	i.vectors, i.meta = vectors, meta
	if err := i.persist(); err != nil {
		i.vectors, i.meta = prevVectors, prevMeta
		return 0, err
	}
	return removed, nil
}

// Sources counts chunks per source.
func (i *Index) Sources() map[string]int {
	i.refresh()
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range i.meta {
		out[e.Source]++
	}
	return out
}

// Search returns up to k entries ordered by ascending L2 distance.
// Ties keep insertion order.
func (i *Index) Search(query []float32, k int) ([]Hit, error) {
	i.refresh()
	i.mu.RLock()
	dim := i.dim
	vectors := i.vectors[:len(i.vectors):len(i.vectors)]
	meta := i.meta[:len(i.meta):len(i.meta)]
	i.mu.RUnlock()

	if len(meta) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimension, dim, len(query))
	}

	hits := make([]Hit, len(meta))
	for row := range meta {
		hits[row] = Hit{Entry: meta[row], Distance: l2(query, vectors[row*dim:(row+1)*dim])}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// persist writes the index; the caller holds the exclusive file lock.
func (i *Index) persist() error {
	if err := save(i.dir, i.dim, i.vectors, i.meta); err != nil {
		return err
	}
	i.seen = readStamp(i.dir)
	return nil
}

// refresh reloads the index when another process replaced the files.
// A failed reload keeps the current snapshot.
func (i *Index) refresh() {
	i.mu.RLock()
	fresh := readStamp(i.dir).same(i.seen)
	i.mu.RUnlock()
	if fresh {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	_ = i.withFileLock(false, i.syncLocked)
}

// syncLocked brings memory in line with the files on disk. The caller holds
// i.mu for writing and the file lock. Corrupt files are left for the next
// persist to overwrite.
func (i *Index) syncLocked() error {
	cur := readStamp(i.dir)
	if cur.same(i.seen) {
		return nil
	}

	vectors, meta, dim, err := load(i.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		i.dim, i.vectors, i.meta = i.fixed, nil, nil
	case errors.Is(err, errCorrupt):
	case err != nil:
		return fmt.Errorf("failed to reload index: %w", err)
	case i.fixed != 0 && dim != 0 && dim != i.fixed:
		return fmt.Errorf("%w: stored %d, configured %d", ErrDimension, dim, i.fixed)
	default:
		i.vectors, i.meta = vectors, meta
		if dim != 0 {
			i.dim = dim
		} else {
			i.dim = i.fixed
		}
	}
	i.seen = cur
	return nil
}

func (i *Index) withFileLock(exclusive bool, fn func() error) error {
	f, err := os.OpenFile(filepath.Join(i.dir, lockFile), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open index lock: %w", err)
	}
	defer f.Close()

	if err := flock(f, exclusive); err != nil {
		return fmt.Errorf("failed to lock index: %w", err)
	}
	defer funlock(f)

	return fn()
}

// l2 is the squared euclidean distance; ordering is the same as L2.
func l2(a, b []float32) float32 {
	var sum float32
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return sum
}

func paths(dir string) (string, string) {
	return filepath.Join(dir, vectorsFile), filepath.Join(dir, metaFile)
}
