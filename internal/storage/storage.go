package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxBlobSize bounds a single stored blob.
const MaxBlobSize = 10 << 20

var (
	// ErrNotFound indicates no blob is stored under the requested key.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidBlob indicates the blob violates validation rules.
	ErrInvalidBlob = errors.New("blob must have a key, a filename and at most 10 MiB of data")
)

// Blob is a stored attachment and its metadata.
type Blob struct {
	Key         string
	Filename    string
	ContentType string
	ByteSize    int64
	// Checksum is the base64 encoded MD5 digest of the data.
	Checksum  string
	CreatedAt time.Time
	Data      []byte
}

// Storage persists attachment blobs.
type Storage interface {
	Put(blob Blob) (Blob, error)
	Get(key string) (Blob, error)
	Delete(key string) error
	List() ([]Blob, error)
}

// MemoryStorage keeps blobs in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryStorage initialises an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blobs: make(map[string]Blob),
	}
}

// Checksum returns the base64 encoded MD5 digest of data.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Put validates, normalises, and stores the provided blob, replacing any blob with the
// same key. The stored copy is returned.
func (s *MemoryStorage) Put(blob Blob) (Blob, error) {
	normalized, err := normalizeBlob(blob)
	if err != nil {
		return Blob{}, err
	}

	s.mu.Lock()
	s.blobs[normalized.Key] = normalized
	s.mu.Unlock()

	return cloneBlob(normalized), nil
}

// Get returns a defensive copy of the blob stored under key.
func (s *MemoryStorage) Get(key string) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[key]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return cloneBlob(blob), nil
}

// Delete removes the blob stored under key.
func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// List returns metadata for every blob ordered by creation time then key. Data is
// omitted.
func (s *MemoryStorage) List() ([]Blob, error) {
	s.mu.RLock()
	out := make([]Blob, 0, len(s.blobs))
	for _, blob := range s.blobs {
		blob.Data = nil
		out = append(out, blob)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func cloneBlob(src Blob) Blob {
	out := src
	out.Data = bytes.Clone(src.Data)
	return out
}

func normalizeBlob(blob Blob) (Blob, error) {
	blob.Key = strings.TrimSpace(blob.Key)
	blob.Filename = strings.TrimSpace(blob.Filename)
	if blob.Key == "" || blob.Filename == "" || len(blob.Data) > MaxBlobSize {
		return Blob{}, ErrInvalidBlob
	}

	if blob.ContentType == "" {
		blob.ContentType = "application/octet-stream"
	}
	blob.Data = bytes.Clone(blob.Data)
	blob.ByteSize = int64(len(blob.Data))
	blob.Checksum = Checksum(blob.Data)
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}
	return blob, nil
}
