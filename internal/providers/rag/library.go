package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
)

// Library keeps uploaded source documents on disk next to the index.
type Library struct {
	dir    string
	engine *Engine
}

type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Chunks     int       `json:"chunks"`
}

func NewLibrary(dir string, engine *Engine) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sources directory: %w", err)
	}
	return &Library{dir: dir, engine: engine}, nil
}

// Add stores the upload and ingests it. The file stays on disk even when
// ingestion fails so it can be retried.
func (l *Library) Add(ctx context.Context, filename string, data []byte) (int, error) {
	name, err := cleanName(filename)
	if err != nil {
		return 0, err
	}
	if !Supported(name) {
		return 0, fmt.Errorf("%w: unsupported file type %q", core.ErrIngestion, filepath.Ext(name))
	}

	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0644); err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", name, err)
	}

	n, err := l.engine.Ingest(ctx, name, data)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("file", name).Msg("saved file could not be indexed")
		return 0, err
	}
	return n, nil
}

// List returns stored documents of a supported type, sorted by name.
func (l *Library) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources directory: %w", err)
	}

	chunks := make(map[string]int)
	for _, s := range l.engine.Sources() {
		chunks[s.Name] = s.Chunks
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
			Chunks:     chunks[entry.Name()],
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Delete removes the stored file and its chunks. Missing files return
// core.ErrNotFound.
func (l *Library) Delete(ctx context.Context, filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return core.ErrNotFound
	}

	if err := os.Remove(filepath.Join(l.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	if _, err := l.engine.Remove(ctx, name); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", name, err)
	}
	return nil
}

func cleanName(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid file name %q", core.ErrIngestion, filename)
	}
	return name, nil
}
