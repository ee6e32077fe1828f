package cache

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/klauspost/compress/zstd"
)

// ResourceStore turns fetched clip bytes into playable resources.
type ResourceStore interface {
	Put(data []byte) (ttypes.Resource, error)
}

// MemoryStore keeps clip bytes in memory.
type MemoryStore struct{}

// Put wraps data in a resource. The caller must not modify data afterwards.
func (MemoryStore) Put(data []byte) (ttypes.Resource, error) {
	return &memoryResource{data: data}, nil
}

type memoryResource struct {
	mu   sync.Mutex
	data []byte
	size int64
	done bool
}

func (r *memoryResource) Open() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil, ErrResourceReleased
	}
	return io.NopCloser(bytes.NewReader(r.data)), nil
}

func (r *memoryResource) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.size
	}
	return int64(len(r.data))
}

func (r *memoryResource) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		r.size = int64(len(r.data))
		r.data = nil
		r.done = true
	}
	return nil
}

// SpoolStore writes clip bytes to zstd-compressed temp files so that long
// queues of preloaded clips do not stay resident in memory.
type SpoolStore struct {
	dir string

	// Compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// Live spool files
	mu    sync.Mutex
	files map[string]struct{}
}

// NewSpoolStore creates a spool store in dir. An empty dir uses the system
// temp directory. level is a zstd level, 0 meaning the default.
func NewSpoolStore(dir string, level int) (*SpoolStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &SpoolStore{
		dir:     dir,
		encoder: encoder,
		decoder: decoder,
		files:   make(map[string]struct{}),
	}, nil
}

// Put compresses data into a new spool file.
func (s *SpoolStore) Put(data []byte) (ttypes.Resource, error) {
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))

	file, err := os.CreateTemp(s.dir, "clip-*.wav.zst")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	path := file.Name()

	_, err = file.Write(compressed)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write spool file: %w", err)
	}

	s.mu.Lock()
	s.files[path] = struct{}{}
	s.mu.Unlock()

	return &spoolResource{store: s, path: path, size: int64(len(data))}, nil
}

// Len returns the number of live spool files.
func (s *SpoolStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Dir returns the spool directory.
func (s *SpoolStore) Dir() string {
	return s.dir
}

// Close removes every remaining spool file and frees the codecs.
func (s *SpoolStore) Close() error {
	s.mu.Lock()
	files := s.files
	s.files = make(map[string]struct{})
	s.mu.Unlock()

	for path := range files {
		_ = os.Remove(path)
	}
	s.decoder.Close()
	return s.encoder.Close()
}

func (s *SpoolStore) remove(path string) error {
	s.mu.Lock()
	_, ok := s.files[path]
	delete(s.files, path)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove spool file %s: %w", filepath.Base(path), err)
	}
	return nil
}

type spoolResource struct {
	store *SpoolStore
	path  string
	size  int64
	once  sync.Once
	err   error
	gone  bool
	mu    sync.Mutex
}

func (r *spoolResource) Open() (io.ReadCloser, error) {
	r.mu.Lock()
	gone := r.gone
	r.mu.Unlock()
	if gone {
		return nil, ErrResourceReleased
	}

	compressed, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool file: %w", err)
	}
	data, err := r.store.decoder.DecodeAll(compressed, make([]byte, 0, r.size))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress spool file: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *spoolResource) Size() int64 {
	return r.size
}

func (r *spoolResource) Release() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.gone = true
		r.mu.Unlock()
		r.err = r.store.remove(r.path)
	})
	return r.err
}
