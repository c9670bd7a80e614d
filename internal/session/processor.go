// Package session turns one captured landmark sequence into a stored,
// risk-classified assessment: it runs the gait and tremor analyzers,
// maintains the patient's baseline and persists the results.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/motion.report/internal/baseline"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/gait"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/tremor"
)

// ErrMissingPatient is returned when a session carries no patient id.
var ErrMissingPatient = errors.New("patient id is required")

// Store is the persistence the Processor needs. DBStore adapts *db.Store
// to it.
type Store interface {
	// WithTx runs fn against a Store whose writes commit together, or not at
	// all when fn fails.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	InsertSession(ctx context.Context, rec *db.SessionRecord) error
	SetSessionDeviation(ctx context.Context, sessionID string, score float64) error
	ListSessionFeatures(ctx context.Context, patientID string, limit int) ([]baseline.Features, error)
	CountSessions(ctx context.Context, patientID string) (int, error)
	GetBaseline(ctx context.Context, patientID string) (*baseline.Baseline, error)
	SaveBaseline(ctx context.Context, b *baseline.Baseline) error
	InsertAssessment(ctx context.Context, rec *db.AssessmentRecord) error
	ListAssessments(ctx context.Context, patientID string, limit int) ([]*db.AssessmentRecord, error)
	ListTrend(ctx context.Context, patientID string) ([]db.TrendPoint, error)
}

// DBStore adapts *db.Store to Store.
type DBStore struct {
	*db.Store
}

// WithTx implements Store.
func (s DBStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.WithTx(ctx, func(tx *db.Store) error {
		return fn(DBStore{tx})
	})
}

// Options configure a Processor.
type Options struct {
	SampleRate         float64
	RequiredSessions   int
	DeviationThreshold float64
	// OnlineUpdate folds every session scored against an existing baseline
	// back into it.
	OnlineUpdate bool
	// SessionTimeout bounds Process; zero disables the deadline.
	SessionTimeout time.Duration
}

// OptionsFromConfig maps the analysis configuration onto processor options.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		SampleRate:         cfg.GetSampleRate(),
		RequiredSessions:   cfg.GetRequiredSessions(),
		DeviationThreshold: cfg.GetDeviationThreshold(),
		OnlineUpdate:       cfg.GetOnlineUpdate(),
		SessionTimeout:     cfg.GetSessionTimeout(),
	}
}

// Assessment is the outcome of processing one session.
type Assessment struct {
	SessionID         string                  `json:"session_id"`
	PatientID         string                  `json:"patient_id"`
	RecordedAt        time.Time               `json:"recorded_at"`
	FrameCount        int                     `json:"frame_count"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	Features          baseline.Features       `json:"features"`
	GaitCycles        int                     `json:"gait_cycles"`
	RestingTremor     bool                    `json:"resting_tremor"`
	RestingConfidence float64                 `json:"resting_tremor_confidence"`
	TremorScore       float64                 `json:"tremor_score"`
	Risk              baseline.Classification `json:"risk"`
	BaselineCreated   bool                    `json:"baseline_created"`
	Recommendations   []string                `json:"recommendations"`
	Summary           string                  `json:"analysis_summary"`

	// Tremor keeps the per-wrist measurements for diagnostics.
	Tremor tremor.Metrics `json:"-"`
}

// BaselineStatus reports a patient's calibration progress.
type BaselineStatus struct {
	PatientID        string             `json:"patient_id"`
	IsCalibrated     bool               `json:"is_calibrated"`
	SessionCount     int                `json:"session_count"`
	RequiredSessions int                `json:"required_sessions"`
	Baseline         *baseline.Baseline `json:"baseline_metrics,omitempty"`
}

// Processor runs the session pipeline. It is safe for concurrent use;
// sessions of the same patient are serialized around the baseline update.
type Processor struct {
	gait      gait.Analyzer
	tremor    tremor.Analyzer
	baselines *baseline.Manager
	store     Store
	clock     timeutil.Clock
	opts      Options
	locks     *patientLocks
}

// NewProcessor creates a Processor persisting through store. A nil clock
// selects the wall clock.
func NewProcessor(store Store, opts Options, clock timeutil.Clock) *Processor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &Processor{
		gait:      gait.NewAnalyzer(opts.SampleRate),
		tremor:    tremor.NewAnalyzer(opts.SampleRate),
		baselines: baseline.NewManager(opts.RequiredSessions, opts.DeviationThreshold, clock),
		store:     store,
		clock:     clock,
		opts:      opts,
		locks:     newPatientLocks(),
	}
	p.opts.SampleRate = p.gait.SampleRate
	p.opts.RequiredSessions = p.baselines.RequiredSessions
	return p
}

// Process analyzes seq for patientID, updates the patient's baseline and
// stores the session and its risk assessment.
func (p *Processor) Process(ctx context.Context, patientID string, seq pose.Sequence) (*Assessment, error) {
	if patientID == "" {
		return nil, ErrMissingPatient
	}
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	if p.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SessionTimeout)
		defer cancel()
	}
	start := p.clock.Now()

	var (
		gm gait.Metrics
		tm tremor.Metrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gm = p.gait.Analyze(seq)
		return gctx.Err()
	})
	g.Go(func() error {
		tm = p.tremor.Analyze(seq)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	features := baseline.Features{
		StrideLength:      baseline.Optional(gm.StrideLength, gm.HasStrideLength),
		Cadence:           baseline.Optional(gm.Cadence, gm.HasCadence),
		GaitSymmetry:      gm.Symmetry,
		TremorFrequency:   baseline.Optional(tm.Left.Frequency, tm.Left.HasFrequency),
		TremorAmplitude:   baseline.Optional(tm.Left.Amplitude, tm.Left.HasAmplitude),
		BradykinesiaScore: gm.BradykinesiaScore,
	}

	unlock := p.locks.Lock(patientID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("process session: %w", err)
	}

	rec := &db.SessionRecord{
		PatientID:       patientID,
		RecordedAt:      p.clock.Now(),
		FrameCount:      len(seq),
		DurationSeconds: seq.Duration(p.opts.SampleRate),
		Features:        features,
		RestingTremor:   tm.RestingTremor,
		TremorScore:     tm.Score,
	}
	a := &Assessment{
		PatientID:         patientID,
		RecordedAt:        rec.RecordedAt,
		FrameCount:        rec.FrameCount,
		DurationSeconds:   rec.DurationSeconds,
		GaitCycles:        len(gm.Cycles),
		RestingTremor:     tm.RestingTremor,
		RestingConfidence: tm.RestingConfidence,
		TremorScore:       tm.Score,
		Tremor:            tm,
	}

	var (
		b     *baseline.Baseline
		score float64
	)
	// The session, baseline and assessment are stored together so a failed
	// step never leaves a session counted towards calibration.
	err := p.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertSession(ctx, rec); err != nil {
			return err
		}

		var err error
		b, a.BaselineCreated, err = p.loadOrCreateBaseline(ctx, tx, patientID)
		if err != nil {
			return err
		}

		exists := b != nil && b.IsCalibrated
		score = p.baselines.DeviationScore(features, b)
		a.Risk = baseline.ClassifyRisk(score, exists)
		a.Features = features

		if exists {
			a.Features = features.WithDeviation(score)
			if err := tx.SetSessionDeviation(ctx, rec.SessionID, score); err != nil {
				return err
			}
			if p.opts.OnlineUpdate && !a.BaselineCreated {
				if err := tx.SaveBaseline(ctx, p.baselines.UpdateBaseline(b, a.Features)); err != nil {
					return err
				}
			}
		}

		a.SessionID = rec.SessionID
		a.Recommendations = Recommendations(a.Features, a.Risk)
		a.Summary = Summary(a.DurationSeconds, a.FrameCount, a.Features, a.Risk)

		return tx.InsertAssessment(ctx, &db.AssessmentRecord{
			SessionID:       rec.SessionID,
			PatientID:       patientID,
			Risk:            a.Risk,
			Recommendations: a.Recommendations,
			CreatedAt:       rec.RecordedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	if a.BaselineCreated {
		monitoring.Logf("[session] patient %s baseline calibrated from %d sessions", patientID, b.SessionCount)
	}
	monitoring.Logf("[session] patient %s session %s: %s score=%.2f frames=%d in %s",
		patientID, rec.SessionID, a.Risk.Level, score, rec.FrameCount, p.clock.Since(start))
	if a.Risk.FlagForReview {
		monitoring.Logf("[session] patient %s session %s flagged for clinical review", patientID, rec.SessionID)
	}
	return a, nil
}

// loadOrCreateBaseline returns the stored baseline, creating it from the
// patient's earliest sessions once enough of them exist. created reports
// whether the baseline was created by this call.
func (p *Processor) loadOrCreateBaseline(ctx context.Context, store Store, patientID string) (b *baseline.Baseline, created bool, err error) {
	b, err = store.GetBaseline(ctx, patientID)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, err
	}

	n, err := store.CountSessions(ctx, patientID)
	if err != nil {
		return nil, false, err
	}
	if n < p.opts.RequiredSessions {
		return nil, false, nil
	}

	history, err := store.ListSessionFeatures(ctx, patientID, p.opts.RequiredSessions)
	if err != nil {
		return nil, false, err
	}
	b, ok := p.baselines.CreateBaseline(history)
	if !ok {
		return nil, false, nil
	}
	b.PatientID = patientID
	if err := store.SaveBaseline(ctx, b); err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// BaselineStatus reports whether the patient is calibrated and how many
// sessions are stored.
func (p *Processor) BaselineStatus(ctx context.Context, patientID string) (*BaselineStatus, error) {
	n, err := p.store.CountSessions(ctx, patientID)
	if err != nil {
		return nil, err
	}
	status := &BaselineStatus{
		PatientID:        patientID,
		SessionCount:     n,
		RequiredSessions: p.opts.RequiredSessions,
	}

	b, err := p.store.GetBaseline(ctx, patientID)
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		status.Baseline = b
		status.IsCalibrated = b.IsCalibrated
	}
	return status, nil
}

// RiskHistory returns the patient's assessments, newest first.
func (p *Processor) RiskHistory(ctx context.Context, patientID string, limit int) ([]*db.AssessmentRecord, error) {
	return p.store.ListAssessments(ctx, patientID, limit)
}

// Trend returns one point per session in chronological order.
func (p *Processor) Trend(ctx context.Context, patientID string) ([]db.TrendPoint, error) {
	return p.store.ListTrend(ctx, patientID)
}
