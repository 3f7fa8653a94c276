package train

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/img2img/data"
	"github.com/gomlx/img2img/metriclog"
	"github.com/gomlx/img2img/model/modeltest"
	"github.com/gomlx/img2img/options"
	"github.com/gomlx/img2img/support/fsutil"
)

// scriptedScorer returns pre-programmed distances in call order and records
// which directories it was asked to compare.
type scriptedScorer struct {
	values []float64
	next   int
	refs   []string
	gens   []string
}

func (s *scriptedScorer) Distance(_ context.Context, referenceDir, generatedDir string) (float64, error) {
	s.refs = append(s.refs, referenceDir)
	s.gens = append(s.gens, generatedDir)
	if s.next >= len(s.values) {
		return 0, fmt.Errorf("unexpected scorer call %d", s.next)
	}
	value := s.values[s.next]
	s.next++
	return value, nil
}

func evaluatorFixture(t *testing.T, scorer *scriptedScorer) (*options.Options, *Evaluator, *modeltest.Fake) {
	t.Helper()
	opts := options.Default()
	opts.Dataroot = t.TempDir()
	opts.CheckpointsDir = t.TempDir()
	opts.Name = "facades_test"
	opts.ValFreq = 100
	require.NoError(t, fsutil.EnsureDir(opts.RunDir()))

	subset := func(name string) data.Dataset {
		return data.NewInMemory(name, []*data.Sample{
			{Path: "one.png"}, {Path: "two.png"},
		})
	}
	e := NewEvaluator(opts, scorer, subset("train"), subset("val"))
	return opts, e, modeltest.NewFake()
}

func TestEvaluatorPromotesStrictImprovements(t *testing.T) {
	// Validation FID sequence 10.0, 10.0, 8.0, 9.0: only the first value and
	// the strict improvement to 8.0 promote; the tie and the regression
	// leave the best checkpoint alone.
	scorer := &scriptedScorer{values: []float64{
		1.0, 10.0, // iteration 100: train, val
		1.0, 10.0, // iteration 200
		1.0, 8.0, // iteration 300
		1.0, 9.0, // iteration 400
	}}
	opts, e, m := evaluatorFixture(t, scorer)

	ctx := context.Background()
	best, err := e.LoadBest()
	require.NoError(t, err)
	assert.False(t, best.Found)

	var promotions []bool
	for _, iteration := range []int{100, 200, 300, 400} {
		var outcome Outcome
		outcome, best, err = e.Run(ctx, m, iteration, best)
		require.NoError(t, err)
		promotions = append(promotions, outcome.Promoted)
	}
	assert.Equal(t, []bool{true, false, true, false}, promotions)
	assert.Equal(t, metriclog.Record{Iteration: 300, FID: 8.0}, best.Record)

	// One best-checkpoint save per promotion, nothing else.
	assert.Equal(t, []string{"smallest_val_fid", "smallest_val_fid"}, m.SavedTags)

	// The persisted marker matches the in-memory best.
	record, found, err := metriclog.NewBestMarker(e.bestMarker.Path()).Read()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, best.Record, record)

	// Both logs got one record per evaluation, in order.
	valRecords, err := e.valLog.Records()
	require.NoError(t, err)
	require.Len(t, valRecords, 4)
	assert.Equal(t, metriclog.Record{Iteration: 100, FID: 10.0}, valRecords[0])
	assert.Equal(t, metriclog.Record{Iteration: 400, FID: 9.0}, valRecords[3])
	trainRecords, err := e.trainLog.Records()
	require.NoError(t, err)
	assert.Len(t, trainRecords, 4)

	// Train snapshots are scored against trainB, val against valB.
	assert.Equal(t, opts.ReferenceDir("train"), scorer.refs[0])
	assert.Equal(t, opts.ReferenceDir("val"), scorer.refs[1])
	// Each iteration scored its own snapshot directory.
	assert.NotEqual(t, scorer.gens[1], scorer.gens[3])
}

func TestEvaluatorRestoresTrainingMode(t *testing.T) {
	scorer := &scriptedScorer{values: []float64{1.0, 10.0}}
	_, e, m := evaluatorFixture(t, scorer)

	_, _, err := e.Run(context.Background(), m, 100, Best{})
	require.NoError(t, err)
	assert.Equal(t, "train", m.Mode)
}

func TestEvaluatorOnLoopCadence(t *testing.T) {
	// val_freq=100 with the counter advancing by 50: evaluation fires at 100
	// and 200 only, and the run ends with best=(200, 9.8).
	scorer := &scriptedScorer{values: []float64{
		20.0, 12.5, // iteration 100
		15.0, 9.8, // iteration 200
	}}
	opts, e, m := evaluatorFixture(t, scorer)
	opts.BatchSize = 50
	opts.SaveEpochFreq = 100 // Keep epoch saves out of the way.
	opts.NEpochsDecay = 0
	opts.NEpochs = 1

	samples := make([]*data.Sample, 250)
	for ii := range samples {
		samples[ii] = &data.Sample{Path: fmt.Sprintf("img_%03d.png", ii)}
	}
	ds := data.NewInMemory("train", samples).BatchSize(50)

	loop := NewLoop(m, opts)
	require.NoError(t, e.Attach(context.Background(), loop))
	require.NoError(t, loop.Run(ds))

	// Both scripted evaluations ran, none past 200.
	assert.Equal(t, 4, scorer.next)
	record, found, err := e.bestMarker.Read()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, metriclog.Record{Iteration: 200, FID: 9.8}, record)
}

func TestEvaluatorRecordsCrossedMultiple(t *testing.T) {
	// With batch size 30 and val_freq 100 the counter overshoots to 120;
	// the snapshot and the records are still tagged with the multiple, 100.
	scorer := &scriptedScorer{values: []float64{20.0, 12.5}}
	opts, e, m := evaluatorFixture(t, scorer)
	opts.SaveEpochFreq = 100
	opts.NEpochsDecay = 0
	opts.NEpochs = 1

	samples := make([]*data.Sample, 150)
	for ii := range samples {
		samples[ii] = &data.Sample{Path: fmt.Sprintf("img_%03d.png", ii)}
	}
	ds := data.NewInMemory("train", samples).BatchSize(30)

	loop := NewLoop(m, opts)
	require.NoError(t, e.Attach(context.Background(), loop))
	require.NoError(t, loop.Run(ds))

	require.Equal(t, 2, scorer.next)
	assert.Contains(t, scorer.gens[0], "iter_0000100")
	record, found, err := e.bestMarker.Read()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, metriclog.Record{Iteration: 100, FID: 12.5}, record)
	valRecords, err := e.valLog.Records()
	require.NoError(t, err)
	require.Len(t, valRecords, 1)
	assert.Equal(t, 100, valRecords[0].Iteration)
}

func TestEvaluatorIdempotentSnapshots(t *testing.T) {
	// Re-running an evaluation at the same iteration (e.g. after a crash and
	// resume) reuses the existing snapshot images but still scores and logs.
	scorer := &scriptedScorer{values: []float64{1.0, 10.0, 1.0, 10.0}}
	_, e, m := evaluatorFixture(t, scorer)

	ctx := context.Background()
	_, best, err := e.Run(ctx, m, 100, Best{})
	require.NoError(t, err)
	testCalls := m.TestCalls
	require.Greater(t, testCalls, 0)

	_, _, err = e.Run(ctx, m, 100, best)
	require.NoError(t, err)
	assert.Equal(t, testCalls, m.TestCalls) // No image regenerated.

	valRecords, err := e.valLog.Records()
	require.NoError(t, err)
	assert.Len(t, valRecords, 2) // But the log still appends.
}

func TestEvaluatorResumeKeepsPersistedBest(t *testing.T) {
	// A marker from a previous run must win over a worse new measurement.
	scorer := &scriptedScorer{values: []float64{1.0, 10.0}}
	_, e, m := evaluatorFixture(t, scorer)
	require.NoError(t, e.bestMarker.Replace(metriclog.Record{Iteration: 9000, FID: 7.5}))

	best, err := e.LoadBest()
	require.NoError(t, err)
	require.True(t, best.Found)
	assert.Equal(t, 7.5, best.FID())

	outcome, best, err := e.Run(context.Background(), m, 100, best)
	require.NoError(t, err)
	assert.False(t, outcome.Promoted)
	assert.Equal(t, metriclog.Record{Iteration: 9000, FID: 7.5}, best.Record)
	assert.Empty(t, m.SavedTags)
}

func TestBestFIDDefaultsToInfinity(t *testing.T) {
	var best Best
	assert.True(t, best.FID() > 1e100)
	assert.True(t, 12.5 < best.FID())
}
