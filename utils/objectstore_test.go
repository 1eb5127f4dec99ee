package utils

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageFilename(t *testing.T) {
	now := time.Date(2026, 3, 17, 10, 15, 0, 0, time.UTC)

	name := ImageFilename("My Balcony Garden.JPG", "image/jpeg", now)
	assert.True(t, strings.HasPrefix(name, "20260317_101500_"), name)
	assert.True(t, strings.HasSuffix(name, "_my-balcony-garden.jpg"), name)
	assert.True(t, ValidFilename(name))

	noExt := ImageFilename("photo", "image/png", now)
	assert.True(t, strings.HasSuffix(noExt, "_photo.png"), noExt)

	empty := ImageFilename("!!!.webp", "image/webp", now)
	assert.True(t, strings.HasSuffix(empty, "_image.webp"), empty)

	assert.NotEqual(t, ImageFilename("a.png", "image/png", now), ImageFilename("a.png", "image/png", now))
}

func TestValidFilename(t *testing.T) {
	assert.True(t, ValidFilename("20260317_101500_abcd1234_x.png"))
	for _, bad := range []string{"", "../secret", "a/b.png", `a\b.png`, ".hidden", "..", "./x"} {
		assert.False(t, ValidFilename(bad), bad)
	}
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	url, err := store.Put(ctx, "images/a.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/images/a.png", url)

	obj, err := store.Get(ctx, "images/a.png")
	require.NoError(t, err)
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.EqualValues(t, 9, obj.Size)

	require.NoError(t, store.Delete(ctx, "images/a.png"))
	_, err = store.Get(ctx, "images/a.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "images/a.png"), ErrObjectNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.png", strings.NewReader("x"), 1, "image/png")
	assert.Error(t, err)
}
