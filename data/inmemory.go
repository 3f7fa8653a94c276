package data

import "io"

// InMemory is a Dataset over samples already in memory. It yields them in
// the given order, which makes it convenient for tests and for small fixed
// evaluation subsets.
type InMemory struct {
	name      string
	samples   []*Sample
	batchSize int
	next      int
}

// NewInMemory creates an InMemory dataset with batch size 1.
func NewInMemory(name string, samples []*Sample) *InMemory {
	return &InMemory{name: name, samples: samples, batchSize: 1}
}

// BatchSize configures how many samples each Yield returns. It returns the
// dataset to allow chaining.
func (ds *InMemory) BatchSize(n int) *InMemory {
	ds.batchSize = n
	return ds
}

// Name implements Dataset.
func (ds *InMemory) Name() string { return ds.name }

// Len implements Dataset.
func (ds *InMemory) Len() int { return len(ds.samples) }

// Reset implements Dataset.
func (ds *InMemory) Reset() error {
	ds.next = 0
	return nil
}

// Yield implements Dataset.
func (ds *InMemory) Yield() (*Batch, error) {
	if ds.next >= len(ds.samples) {
		return nil, io.EOF
	}
	end := ds.next + ds.batchSize
	if end > len(ds.samples) {
		end = len(ds.samples)
	}
	batch := &Batch{Samples: ds.samples[ds.next:end]}
	ds.next = end
	return batch, nil
}

var _ Dataset = (*InMemory)(nil)
