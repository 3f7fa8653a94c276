package data

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage saves a tiny solid-colored image, so pairing and decoding
// are exercised with real files.
func writeTestImage(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

// buildDataroot creates `<root>/trainA` and `<root>/trainB` with n paired
// images named img_000.png, img_001.png, ...
func buildDataroot(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	for _, domain := range []string{"A", "B"} {
		dir := filepath.Join(root, "train"+domain)
		require.NoError(t, os.MkdirAll(dir, 0770))
		for ii := 0; ii < n; ii++ {
			writeTestImage(t, filepath.Join(dir, fmt.Sprintf("img_%03d.png", ii)),
				color.RGBA{R: uint8(ii), A: 255})
		}
	}
	return root
}

func TestImageFolderCanonicalOrder(t *testing.T) {
	root := buildDataroot(t, 5)
	// A stray non-image file must be ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "trainA", "notes.txt"), []byte("x"), 0660))

	ds, err := NewImageFolder(root, "train", ModeAligned, "A")
	require.NoError(t, err)
	assert.Equal(t, "train", ds.Name())
	assert.Equal(t, 5, ds.Len())

	var paths []string
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, 1, batch.Size())
		require.NotNil(t, batch.Samples[0].Input)
		require.NotNil(t, batch.Samples[0].Target)
		paths = append(paths, batch.Paths()...)
	}
	want := make([]string, 5)
	for ii := range want {
		want[ii] = filepath.Join(root, "trainA", fmt.Sprintf("img_%03d.png", ii))
	}
	assert.Equal(t, want, paths)

	// After Reset the same canonical order comes back.
	require.NoError(t, ds.Reset())
	batch, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, want[0], batch.Samples[0].Path)
}

func TestImageFolderBatching(t *testing.T) {
	root := buildDataroot(t, 5)
	ds, err := NewImageFolder(root, "train", ModeUnaligned, "A")
	require.NoError(t, err)
	ds.BatchSize(2)

	var sizes []int
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, batch.Size())
		// Unaligned datasets carry no target image.
		assert.Nil(t, batch.Samples[0].Target)
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestImageFolderLimit(t *testing.T) {
	root := buildDataroot(t, 5)
	ds, err := NewImageFolder(root, "train", ModeUnaligned, "A")
	require.NoError(t, err)
	ds.Limit(2)
	assert.Equal(t, 2, ds.Len())

	var paths []string
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		paths = append(paths, batch.Paths()...)
	}
	// Capped to the first samples in canonical order.
	assert.Equal(t, []string{
		filepath.Join(root, "trainA", "img_000.png"),
		filepath.Join(root, "trainA", "img_001.png"),
	}, paths)

	// Zero and over-sized caps are no-ops.
	ds, err = NewImageFolder(root, "train", ModeUnaligned, "A")
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Limit(0).Len())
	assert.Equal(t, 5, ds.Limit(100).Len())
}

func TestImageFolderAlignedPairing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "valA"), 0770))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "valB"), 0770))
	writeTestImage(t, filepath.Join(root, "valA", "city.png"), color.RGBA{R: 10, A: 255})
	// The pair may use a different extension, matching by base name.
	writeTestImage(t, filepath.Join(root, "valB", "city.jpg"), color.RGBA{G: 20, A: 255})

	ds, err := NewImageFolder(root, "val", ModeAligned, "A")
	require.NoError(t, err)
	batch, err := ds.Yield()
	require.NoError(t, err)
	require.NotNil(t, batch.Samples[0].Target)

	// An image without a pair is an error at Yield time.
	writeTestImage(t, filepath.Join(root, "valA", "alone.png"), color.RGBA{B: 30, A: 255})
	ds, err = NewImageFolder(root, "val", ModeAligned, "A")
	require.NoError(t, err)
	_, err = ds.Yield() // "alone.png" sorts first.
	assert.ErrorContains(t, err, "no paired image")
}

func TestImageFolderErrors(t *testing.T) {
	root := buildDataroot(t, 2)
	_, err := NewImageFolder(root, "train", "sideways", "A")
	assert.ErrorContains(t, err, "unknown dataset mode")
	_, err = NewImageFolder(root, "test", ModeAligned, "A")
	assert.Error(t, err) // testA does not exist.

	empty := filepath.Join(root, "valA")
	require.NoError(t, os.MkdirAll(empty, 0770))
	_, err = NewImageFolder(root, "val", ModeUnaligned, "A")
	assert.ErrorContains(t, err, "no images found")
}

func TestInMemory(t *testing.T) {
	samples := []*Sample{
		{Path: "a.png"}, {Path: "b.png"}, {Path: "c.png"},
	}
	ds := NewInMemory("subset", samples).BatchSize(2)
	assert.Equal(t, 3, ds.Len())

	batch, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, batch.Paths())
	batch, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []string{"c.png"}, batch.Paths())
	_, err = ds.Yield()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, ds.Reset())
	batch, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, "a.png", batch.Samples[0].Path)
}

func TestExhaust(t *testing.T) {
	ds := NewInMemory("subset", []*Sample{{Path: "a"}, {Path: "b"}})
	var seen []string
	require.NoError(t, Exhaust(ds, func(batch *Batch) error {
		seen = append(seen, batch.Paths()...)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, seen)
	// Exhaust resets the dataset, so a second pass sees everything again.
	seen = nil
	require.NoError(t, Exhaust(ds, func(batch *Batch) error {
		seen = append(seen, batch.Paths()...)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, seen)
}
