package session

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/baseline"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/testutil"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newTestStore(t *testing.T, clock timeutil.Clock) *db.Store {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "motion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	store, err := db.NewStore(database, 16, clock)
	require.NoError(t, err)
	return store
}

func newTestProcessor(t *testing.T, opts Options) (*Processor, *db.Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	store := newTestStore(t, clock)
	return NewProcessor(DBStore{store}, opts, clock), store, clock
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultAnalysisConfig())
	assert.Equal(t, Options{
		SampleRate:         30,
		RequiredSessions:   7,
		DeviationThreshold: 2.5,
		OnlineUpdate:       true,
		SessionTimeout:     30 * time.Second,
	}, opts)
}

func TestProcess_InvalidInput(t *testing.T) {
	p, _, _ := newTestProcessor(t, Options{})
	ctx := context.Background()

	_, err := p.Process(ctx, "", testutil.StaticSequence(10))
	assert.ErrorIs(t, err, ErrMissingPatient)

	seq := testutil.StaticSequence(10)
	seq[2][pose.Nose].X = math.Inf(1)
	_, err = p.Process(ctx, "p1", seq)
	assert.ErrorIs(t, err, pose.ErrNonFiniteCoordinate)
}

func TestProcess_CancelledContext(t *testing.T) {
	p, store, _ := newTestProcessor(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, "p1", testutil.StaticSequence(30))
	assert.ErrorIs(t, err, context.Canceled)

	n, err := store.CountSessions(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, n, "a cancelled session must not be stored")
}

func TestProcess_BaselineLifecycle(t *testing.T) {
	p, store, clock := newTestProcessor(t, Options{SampleRate: 30, RequiredSessions: 3, OnlineUpdate: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a, err := p.Process(ctx, "p1", testutil.StaticSequence(60))
		require.NoError(t, err)
		assert.Equal(t, baseline.RiskBaselineLearning, a.Risk.Level)
		assert.Equal(t, baseline.LearningMessage, a.Risk.Message)
		assert.Zero(t, a.Risk.Score)
		assert.Nil(t, a.Features.DeviationFromBaseline)
		assert.False(t, a.BaselineCreated)
		assert.Equal(t, []string{RecommendBradykinesia}, a.Recommendations, "a still subject scores 1.0 bradykinesia")
		assert.InDelta(t, 2.0, a.DurationSeconds, 1e-9)
		clock.Advance(24 * time.Hour)
	}

	status, err := p.BaselineStatus(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, status.IsCalibrated)
	assert.Equal(t, 2, status.SessionCount)
	assert.Equal(t, 3, status.RequiredSessions)
	assert.Nil(t, status.Baseline)

	a, err := p.Process(ctx, "p1", testutil.StaticSequence(60))
	require.NoError(t, err)
	assert.True(t, a.BaselineCreated)
	assert.Equal(t, baseline.RiskLow, a.Risk.Level)
	require.NotNil(t, a.Features.DeviationFromBaseline)
	assert.Zero(t, *a.Features.DeviationFromBaseline)

	status, err = p.BaselineStatus(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, status.IsCalibrated)
	require.NotNil(t, status.Baseline)
	assert.Equal(t, 3, status.Baseline.SessionCount)
	assert.Equal(t, 1.0, status.Baseline.GaitSymmetry.Mean)

	history, err := p.RiskHistory(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, baseline.RiskLow, history[0].Risk.Level, "newest first")
	assert.Equal(t, baseline.RiskBaselineLearning, history[2].Risk.Level)

	trend, err := p.Trend(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, trend, 3)
	assert.Equal(t, epoch, trend[0].RecordedAt)
	assert.Equal(t, baseline.RiskLow, trend[2].RiskLevel)

	features, err := store.ListSessionFeatures(ctx, "p1", 0)
	require.NoError(t, err)
	require.NotNil(t, features[2].DeviationFromBaseline, "deviation is written back to the session")
}

func seedBaseline(t *testing.T, store *db.Store, patientID string) *baseline.Baseline {
	t.Helper()
	b := &baseline.Baseline{
		PatientID:    patientID,
		GaitSymmetry: baseline.Stats{Mean: 0.9, Std: 0.05, Count: 7},
		Bradykinesia: baseline.Stats{Mean: 0.5, Std: 0.1, Count: 7},
		SessionCount: 7,
		IsCalibrated: true,
		LastUpdated:  epoch,
	}
	require.NoError(t, store.SaveBaseline(context.Background(), b))
	return b
}

func TestProcess_HighRiskAndOnlineUpdate(t *testing.T) {
	p, store, clock := newTestProcessor(t, Options{RequiredSessions: 7, OnlineUpdate: true})
	ctx := context.Background()
	seedBaseline(t, store, "p1")
	clock.Advance(time.Hour)

	// A still subject: symmetry 1.0 (z=2) and bradykinesia 1.0 (z=5).
	a, err := p.Process(ctx, "p1", testutil.StaticSequence(60))
	require.NoError(t, err)

	assert.InDelta(t, 3.5, a.Risk.Score, 1e-9)
	assert.Equal(t, baseline.RiskHigh, a.Risk.Level)
	assert.True(t, a.Risk.FlagForReview)
	assert.InDelta(t, 0.7, a.Risk.Confidence, 1e-9)
	assert.Contains(t, a.Recommendations, RecommendBradykinesia)
	assert.Contains(t, a.Recommendations, RecommendUrgent)
	assert.Contains(t, a.Summary, "Overall Risk Level: HIGH")

	b, err := store.GetBaseline(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 0.91, b.GaitSymmetry.Mean, 1e-9)
	assert.InDelta(t, 0.55, b.Bradykinesia.Mean, 1e-9)
	assert.Equal(t, 0.05, b.GaitSymmetry.Std, "standard deviations are not updated")
	assert.Equal(t, epoch.Add(time.Hour), b.LastUpdated)
}

func TestProcess_OnlineUpdateDisabled(t *testing.T) {
	p, store, _ := newTestProcessor(t, Options{OnlineUpdate: false})
	ctx := context.Background()
	seeded := seedBaseline(t, store, "p1")

	_, err := p.Process(ctx, "p1", testutil.StaticSequence(60))
	require.NoError(t, err)

	b, err := store.GetBaseline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, seeded.GaitSymmetry, b.GaitSymmetry)
	assert.Equal(t, seeded.Bradykinesia, b.Bradykinesia)
}

func TestProcess_TremorFeatures(t *testing.T) {
	p, _, _ := newTestProcessor(t, Options{})
	a, err := p.Process(context.Background(), "p1", testutil.TremorSequence(60, 30, 5, 0.4))
	require.NoError(t, err)

	require.NotNil(t, a.Features.TremorFrequency)
	assert.InDelta(t, 5, *a.Features.TremorFrequency, 0.5)
	require.NotNil(t, a.Features.TremorAmplitude)
	assert.True(t, a.RestingTremor)
	assert.Greater(t, a.TremorScore, 0.0)
	assert.Nil(t, a.Features.StrideLength, "no ankle movement means no gait cycles")
	assert.Zero(t, a.GaitCycles)
}

func TestProcess_ConcurrentSessionsSamePatient(t *testing.T) {
	p, store, _ := newTestProcessor(t, Options{RequiredSessions: 3, OnlineUpdate: true})
	ctx := context.Background()

	const sessions = 8
	results := make([]*Assessment, sessions)
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := p.Process(ctx, "p1", testutil.StaticSequence(40))
			if err != nil {
				errs <- err
				return
			}
			results[i] = a
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Process failed: %v", err)
	}

	created := 0
	learning := 0
	for _, a := range results {
		if a.BaselineCreated {
			created++
		}
		if a.Risk.Level == baseline.RiskBaselineLearning {
			learning++
		}
	}
	assert.Equal(t, 1, created, "exactly one session creates the baseline")
	assert.Equal(t, 2, learning)

	n, err := store.CountSessions(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sessions, n)
	assert.Zero(t, p.locks.size())
}

// failingStore fails the named write with err, inside and outside
// transactions.
type failingStore struct {
	Store
	failOn string
	err    error
}

func (f failingStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return f.Store.WithTx(ctx, func(tx Store) error {
		return fn(failingStore{Store: tx, failOn: f.failOn, err: f.err})
	})
}

func (f failingStore) InsertSession(ctx context.Context, rec *db.SessionRecord) error {
	if f.failOn == "InsertSession" {
		return f.err
	}
	return f.Store.InsertSession(ctx, rec)
}

func (f failingStore) InsertAssessment(ctx context.Context, rec *db.AssessmentRecord) error {
	if f.failOn == "InsertAssessment" {
		return f.err
	}
	return f.Store.InsertAssessment(ctx, rec)
}

func TestProcess_StoreErrorPropagates(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	boom := errors.New("disk full")
	store := failingStore{Store: DBStore{newTestStore(t, clock)}, failOn: "InsertSession", err: boom}
	p := NewProcessor(store, Options{}, clock)

	_, err := p.Process(context.Background(), "p1", testutil.StaticSequence(10))
	assert.ErrorIs(t, err, boom)
}

func TestProcess_FailedAssessmentRollsBackSession(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	boom := errors.New("disk full")
	dbStore := newTestStore(t, clock)
	p := NewProcessor(failingStore{Store: DBStore{dbStore}, failOn: "InsertAssessment", err: boom}, Options{RequiredSessions: 2}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Process(ctx, "p1", testutil.WalkingSequence(90, 30, 1))
		require.ErrorIs(t, err, boom)
		clock.Advance(time.Hour)
	}

	n, err := dbStore.CountSessions(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = dbStore.GetBaseline(ctx, "p1")
	assert.ErrorIs(t, err, db.ErrNotFound)
	history, err := dbStore.ListAssessments(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Once the store recovers, calibration starts from scratch.
	ok := NewProcessor(DBStore{dbStore}, Options{RequiredSessions: 2}, clock)
	a, err := ok.Process(ctx, "p1", testutil.WalkingSequence(90, 30, 1))
	require.NoError(t, err)
	assert.Equal(t, baseline.RiskBaselineLearning, a.Risk.Level)
	assert.False(t, a.BaselineCreated)
}
