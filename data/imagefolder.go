package data

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Dataset modes supported by ImageFolder.
const (
	// ModeAligned loads paired samples: for each image in `<phase>A` the file
	// with the same base name must exist in `<phase>B`.
	ModeAligned = "aligned"

	// ModeUnaligned loads only the source-domain images from `<phase>A`.
	ModeUnaligned = "unaligned"
)

var orderedExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// ImageFolder is a Dataset over a directory of image files, following the
// `<dataroot>/<phase><domain>` convention (e.g. trainA, trainB, valA).
//
// Images are listed once at construction, in lexical order, and decoded
// lazily at Yield time. The default configuration -- batch size 1, no
// shuffling, no augmentation -- yields the samples in a canonical, stable
// order, which is what the evaluation subsets require.
type ImageFolder struct {
	name      string
	dataroot  string
	mode      string
	direction string

	paths []string // Source-domain files, lexical order.
	order []int    // Iteration order over paths, re-shuffled on Reset if shuffling.
	next  int

	batchSize int
	shuffle   bool
	augment   bool
	rng       *rand.Rand
}

// NewImageFolder creates an ImageFolder for the given phase ("train", "val",
// "test"). The direction decides which domain is the source: "A" for AtoB,
// "B" for BtoA.
func NewImageFolder(dataroot, phase, mode, sourceDomain string) (*ImageFolder, error) {
	switch mode {
	case ModeAligned, ModeUnaligned:
	default:
		return nil, errors.Errorf("unknown dataset mode %q, must be %q or %q", mode, ModeAligned, ModeUnaligned)
	}
	sourceDir := filepath.Join(dataroot, phase+sourceDomain)
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list dataset directory %q", sourceDir)
	}
	ds := &ImageFolder{
		name:      phase,
		dataroot:  dataroot,
		mode:      mode,
		direction: sourceDomain,
		batchSize: 1,
		rng:       rand.New(rand.NewSource(42)),
	}
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		ds.paths = append(ds.paths, filepath.Join(sourceDir, entry.Name()))
	}
	if len(ds.paths) == 0 {
		return nil, errors.Errorf("no images found in dataset directory %q", sourceDir)
	}
	sort.Strings(ds.paths)
	ds.order = make([]int, len(ds.paths))
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds, nil
}

// BatchSize configures how many samples each Yield returns. A trailing
// incomplete batch is yielded as-is. It returns the dataset to allow chaining.
func (ds *ImageFolder) BatchSize(n int) *ImageFolder {
	ds.batchSize = n
	return ds
}

// Shuffle makes the dataset yield samples in a random order, re-shuffled at
// every Reset. It returns the dataset to allow chaining.
func (ds *ImageFolder) Shuffle() *ImageFolder {
	ds.shuffle = true
	ds.shuffleOrder()
	return ds
}

// Limit caps the dataset to its first n samples in canonical (lexical)
// order, so evaluation subsets stay cheap on large datasets. A non-positive
// n or one past the dataset size leaves it unchanged. It returns the dataset
// to allow chaining.
func (ds *ImageFolder) Limit(n int) *ImageFolder {
	if n <= 0 || n >= len(ds.paths) {
		return ds
	}
	ds.paths = ds.paths[:n]
	ds.order = ds.order[:0]
	for ii := 0; ii < n; ii++ {
		ds.order = append(ds.order, ii)
	}
	if ds.shuffle {
		ds.shuffleOrder()
	}
	return ds
}

// WithAugmentation enables random horizontal flipping of the yielded images.
// Evaluation subsets must not use it. It returns the dataset to allow chaining.
func (ds *ImageFolder) WithAugmentation() *ImageFolder {
	ds.augment = true
	return ds
}

// Name implements Dataset.
func (ds *ImageFolder) Name() string { return ds.name }

// Len implements Dataset.
func (ds *ImageFolder) Len() int { return len(ds.paths) }

func (ds *ImageFolder) shuffleOrder() {
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// Reset implements Dataset.
func (ds *ImageFolder) Reset() error {
	ds.next = 0
	if ds.shuffle {
		ds.shuffleOrder()
	}
	return nil
}

// Yield implements Dataset. It returns io.EOF at the end of the epoch.
func (ds *ImageFolder) Yield() (*Batch, error) {
	if ds.next >= len(ds.order) {
		return nil, io.EOF
	}
	end := ds.next + ds.batchSize
	if end > len(ds.order) {
		end = len(ds.order)
	}
	batch := &Batch{Samples: make([]*Sample, 0, end-ds.next)}
	for _, idx := range ds.order[ds.next:end] {
		sample, err := ds.loadSample(ds.paths[idx])
		if err != nil {
			return nil, err
		}
		batch.Samples = append(batch.Samples, sample)
	}
	ds.next = end
	return batch, nil
}

func (ds *ImageFolder) loadSample(path string) (*Sample, error) {
	input, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", path)
	}
	sample := &Sample{Path: path, Input: input}
	if ds.mode == ModeAligned {
		targetPath, err := ds.targetPath(path)
		if err != nil {
			return nil, err
		}
		if sample.Target, err = imaging.Open(targetPath); err != nil {
			return nil, errors.Wrapf(err, "failed to decode paired image %q for %q", targetPath, path)
		}
	}
	if ds.augment && ds.rng.Intn(2) == 0 {
		sample.Input = imaging.FlipH(sample.Input)
		if sample.Target != nil {
			sample.Target = imaging.FlipH(sample.Target)
		}
	}
	return sample, nil
}

// targetPath maps a source-domain file to its pair in the other domain,
// matching by base name: any extension accepted by the dataset works.
func (ds *ImageFolder) targetPath(sourcePath string) (string, error) {
	otherDomain := "B"
	if ds.direction == "B" {
		otherDomain = "A"
	}
	targetDir := filepath.Join(ds.dataroot, ds.name+otherDomain)
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	for _, ext := range orderedExtensions {
		candidate := filepath.Join(targetDir, base+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no paired image for %q in %q", sourcePath, targetDir)
}

var _ Dataset = (*ImageFolder)(nil)
