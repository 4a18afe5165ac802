// Package attachments implements the file-attachment subsystem on top of blob storage.
package attachments

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eugenenazirov/webhost/internal/settings"
	"github.com/eugenenazirov/webhost/internal/storage"
)

// ErrDisabled is returned when the attachment integration is not enabled.
var ErrDisabled = errors.New("attachments are disabled")

// Image types both variant processors can transform.
var variableContentTypes = map[string]struct{}{
	"image/png":                 {},
	"image/gif":                 {},
	"image/jpeg":                {},
	"image/tiff":                {},
	"image/bmp":                 {},
	"image/vnd.adobe.photoshop": {},
	"image/vnd.microsoft.icon":  {},
	"image/webp":                {},
	"image/avif":                {},
	"image/heic":                {},
	"image/heif":                {},
}

// Attachment is a stored blob as seen by callers.
type Attachment struct {
	Key              string    `json:"key"`
	Filename         string    `json:"filename"`
	ContentType      string    `json:"contentType"`
	ByteSize         int64     `json:"byteSize"`
	Checksum         string    `json:"checksum"`
	CreatedAt        time.Time `json:"createdAt"`
	Variable         bool      `json:"variable"`
	VariantProcessor string    `json:"variantProcessor,omitempty"`
}

// Service stores and retrieves attachments.
type Service struct {
	store     storage.Storage
	processor settings.VariantProcessor
	clock     func() time.Time
	newKey    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithKeyGenerator overrides blob key generation, primarily for tests.
func WithKeyGenerator(newKey func() string) Option {
	return func(s *Service) {
		s.newKey = newKey
	}
}

// New builds a Service. It returns ErrDisabled when cfg is nil.
func New(cfg *settings.ActiveStorage, store storage.Storage, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, ErrDisabled
	}
	s := &Service{
		store:     store,
		processor: cfg.VariantProcessor,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newKey: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Processor returns the configured variant processor.
func (s *Service) Processor() settings.VariantProcessor {
	return s.processor
}

// Attach stores data under a fresh key. An empty content type is guessed from the
// filename extension.
func (s *Service) Attach(filename, contentType string, data []byte) (Attachment, error) {
	filename = path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if filename == "." || filename == "/" {
		filename = ""
	}

	blob, err := s.store.Put(storage.Blob{
		Key:         s.newKey(),
		Filename:    filename,
		ContentType: resolveContentType(filename, contentType),
		Data:        data,
		CreatedAt:   s.clock(),
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	return s.toAttachment(blob), nil
}

// Find returns attachment metadata.
func (s *Service) Find(key string) (Attachment, error) {
	blob, err := s.store.Get(key)
	if err != nil {
		return Attachment{}, err
	}
	return s.toAttachment(blob), nil
}

// Download returns attachment metadata and content.
func (s *Service) Download(key string) (Attachment, []byte, error) {
	blob, err := s.store.Get(key)
	if err != nil {
		return Attachment{}, nil, err
	}
	return s.toAttachment(blob), blob.Data, nil
}

// Purge deletes an attachment.
func (s *Service) Purge(key string) error {
	return s.store.Delete(key)
}

// List returns metadata for all attachments.
func (s *Service) List() ([]Attachment, error) {
	blobs, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(blobs))
	for _, blob := range blobs {
		out = append(out, s.toAttachment(blob))
	}
	return out, nil
}

// Variable reports whether the configured processor can build variants of contentType.
func (s *Service) Variable(contentType string) bool {
	if s.processor == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := variableContentTypes[mediaType]
	return ok
}

func (s *Service) toAttachment(blob storage.Blob) Attachment {
	a := Attachment{
		Key:         blob.Key,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		ByteSize:    blob.ByteSize,
		Checksum:    blob.Checksum,
		CreatedAt:   blob.CreatedAt,
		Variable:    s.Variable(blob.ContentType),
	}
	if a.Variable {
		a.VariantProcessor = s.processor.String()
	}
	return a
}

func resolveContentType(filename, contentType string) string {
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		return contentType
	}
	if byExt := mime.TypeByExtension(path.Ext(filename)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
