package vecindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

const formatVersion uint32 = 1

var magic = [4]byte{'K', 'A', 'I', 'V'}

var errCorrupt = errors.New("index files are inconsistent")

type header struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint32
}

// encodeMeta writes the metadata list.
var encodeMeta = func(w io.Writer, meta []Entry) error {
	return msgpack.NewEncoder(w).Encode(meta)
}

// save writes both files to temp names first; the live files are replaced
// only once both writes succeeded.
func save(dir string, dim int, vectors []float32, meta []Entry) error {
	vecPath, metaPath := paths(dir)

	vecTmp, err := writeTemp(vecPath, func(w io.Writer) error {
		h := header{Magic: magic, Version: formatVersion, Dim: uint32(dim), Count: uint32(len(meta))}
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, vectors)
	})
	if err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	defer os.Remove(vecTmp)

	metaTmp, err := writeTemp(metaPath, func(w io.Writer) error {
		return encodeMeta(w, meta)
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	defer os.Remove(metaTmp)

	if err := os.Rename(vecTmp, vecPath); err != nil {
		return fmt.Errorf("failed to replace vectors: %w", err)
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	return nil
}

func load(dir string) ([]float32, []Entry, int, error) {
	vecPath, metaPath := paths(dir)

	vf, err := os.Open(vecPath)
	if err != nil {
		return nil, nil, 0, err
	}
	defer vf.Close()

	var h header
	r := bufio.NewReader(vf)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: header: %v", errCorrupt, err)
	}
	if h.Magic != magic || h.Version != formatVersion {
		return nil, nil, 0, fmt.Errorf("%w: unknown format", errCorrupt)
	}

	st, err := vf.Stat()
	if err != nil {
		return nil, nil, 0, err
	}
	want := int64(binary.Size(h)) + int64(h.Dim)*int64(h.Count)*4
	if st.Size() != want {
		return nil, nil, 0, fmt.Errorf("%w: size %d, want %d", errCorrupt, st.Size(), want)
	}

	vectors := make([]float32, int(h.Dim)*int(h.Count))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: vectors: %v", errCorrupt, err)
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, 0, fmt.Errorf("%w: metadata missing", errCorrupt)
		}
		return nil, nil, 0, err
	}
	defer mf.Close()

	var meta []Entry
	if err := msgpack.NewDecoder(bufio.NewReader(mf)).Decode(&meta); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: metadata: %v", errCorrupt, err)
	}
	if len(meta) != int(h.Count) {
		return nil, nil, 0, fmt.Errorf("%w: %d vectors, %d entries", errCorrupt, h.Count, len(meta))
	}

	return vectors, meta, int(h.Dim), nil
}

// writeTemp fills a synced temp file next to path and returns its name.
func writeTemp(path string, fill func(w io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}

	bw := bufio.NewWriter(tmp)
	err = fill(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// stamp identifies the persisted files. Every save renames new files into
// place, so a changed stamp means another writer touched the index.
type stamp struct {
	vectors os.FileInfo
	meta    os.FileInfo
}

func readStamp(dir string) stamp {
	vecPath, metaPath := paths(dir)
	var s stamp
	s.vectors, _ = os.Stat(vecPath)
	s.meta, _ = os.Stat(metaPath)
	return s
}

func (s stamp) same(o stamp) bool {
	return sameFile(s.vectors, o.vectors) && sameFile(s.meta, o.meta)
}

func sameFile(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}
