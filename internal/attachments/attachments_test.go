package attachments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/webhost/internal/settings"
	"github.com/eugenenazirov/webhost/internal/storage"
)

var fixedTime = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := settings.Apply(settings.Environ{}, settings.Capabilities{Attachments: true}).ActiveStorage()
	keys := []string{"key-1", "key-2", "key-3"}
	svc, err := New(cfg, storage.NewMemoryStorage(),
		WithClock(func() time.Time { return fixedTime }),
		WithKeyGenerator(func() string {
			key := keys[0]
			keys = keys[1:]
			return key
		}),
	)
	require.NoError(t, err)
	return svc
}

func TestNewRequiresActiveStorage(t *testing.T) {
	t.Parallel()

	cfg := settings.Apply(settings.Environ{}, settings.Capabilities{}).ActiveStorage()
	_, err := New(cfg, storage.NewMemoryStorage())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAttachAndDownload(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	assert.Equal(t, settings.VariantProcessorMiniMagick, svc.Processor())

	a, err := svc.Attach("photos/../avatar.png", "", []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "key-1", a.Key)
	assert.Equal(t, "avatar.png", a.Filename)
	assert.Equal(t, "image/png", a.ContentType)
	assert.Equal(t, int64(9), a.ByteSize)
	assert.Equal(t, storage.Checksum([]byte("png-bytes")), a.Checksum)
	assert.Equal(t, fixedTime, a.CreatedAt)
	assert.True(t, a.Variable)
	assert.Equal(t, "mini_magick", a.VariantProcessor)

	found, data, err := svc.Download("key-1")
	require.NoError(t, err)
	assert.Equal(t, a, found)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestAttachNonVariableContent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	a, err := svc.Attach("notes.txt", "text/plain; charset=utf-8", []byte("hi"))
	require.NoError(t, err)

	assert.Equal(t, "text/plain; charset=utf-8", a.ContentType)
	assert.False(t, a.Variable)
	assert.Empty(t, a.VariantProcessor)
}

func TestAttachRejectsMissingFilename(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Attach("  ", "image/png", []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrInvalidBlob))
}

func TestPurgeAndList(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Attach("a.gif", "", []byte("a"))
	require.NoError(t, err)
	_, err = svc.Attach("b.bin", "", []byte("b"))
	require.NoError(t, err)

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "key-1", list[0].Key)
	assert.Equal(t, "application/octet-stream", list[1].ContentType)

	require.NoError(t, svc.Purge("key-1"))
	_, err = svc.Find("key-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, svc.Purge("key-1"), storage.ErrNotFound)
}

func TestVariable(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	assert.True(t, svc.Variable("image/jpeg"))
	assert.True(t, svc.Variable("image/webp; q=1"))
	assert.False(t, svc.Variable("image/svg+xml"))
	assert.False(t, svc.Variable("not a type;;"))
}
