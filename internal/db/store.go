package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/banshee-data/motion.report/internal/baseline"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// SessionRecord is one analyzed session as stored in the sessions table.
type SessionRecord struct {
	SessionID       string            `json:"session_id"`
	PatientID       string            `json:"patient_id"`
	RecordedAt      time.Time         `json:"recorded_at"`
	FrameCount      int               `json:"frame_count"`
	DurationSeconds float64           `json:"duration_seconds"`
	Features        baseline.Features `json:"features"`
	RestingTremor   bool              `json:"resting_tremor"`
	TremorScore     float64           `json:"tremor_score"`
}

// AssessmentRecord is the persisted risk assessment of one session.
type AssessmentRecord struct {
	AssessmentID    string                  `json:"assessment_id"`
	SessionID       string                  `json:"session_id"`
	PatientID       string                  `json:"patient_id"`
	Risk            baseline.Classification `json:"risk"`
	Recommendations []string                `json:"recommendations"`
	CreatedAt       time.Time               `json:"created_at"`
}

// TrendPoint is one session on a patient's trend line. RiskLevel is empty
// when the session has no stored assessment.
type TrendPoint struct {
	SessionID         string             `json:"session_id"`
	RecordedAt        time.Time          `json:"date"`
	GaitSymmetry      float64            `json:"gait_symmetry"`
	TremorFrequency   *float64           `json:"tremor_frequency"`
	BradykinesiaScore float64            `json:"bradykinesia"`
	RiskLevel         baseline.RiskLevel `json:"risk_level,omitempty"`
}

// baselineMetrics is the JSON layout of baselines.metrics_json.
type baselineMetrics struct {
	StrideLength    baseline.Stats `json:"stride_length"`
	Cadence         baseline.Stats `json:"cadence"`
	GaitSymmetry    baseline.Stats `json:"gait_symmetry"`
	Bradykinesia    baseline.Stats `json:"bradykinesia"`
	TremorFrequency baseline.Stats `json:"tremor_frequency"`
	TremorAmplitude baseline.Stats `json:"tremor_amplitude"`
}

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store provides persistence for the session pipeline. Baselines are served
// through an LRU cache that is refreshed on every committed save.
type Store struct {
	db        *DB
	q         querier
	clock     timeutil.Clock
	baselines *lru.Cache[string, baseline.Baseline]

	// staged is non-nil inside WithTx: baselines saved by the transaction,
	// published to the cache only after commit.
	staged map[string]baseline.Baseline
}

// NewStore creates a Store over db caching up to cacheSize baselines.
func NewStore(db *DB, cacheSize int, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	cache, err := lru.New[string, baseline.Baseline](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create baseline cache: %w", err)
	}
	return &Store{db: db, q: db, clock: clock, baselines: cache}, nil
}

// WithTx runs fn against a Store bound to one database transaction. The
// transaction commits when fn returns nil and rolls back otherwise, so a
// failed fn leaves no rows behind. Calls nested inside fn join the outer
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.staged != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			monitoring.Logf("[db] rollback failed: %v", err)
		}
	}()

	txStore := &Store{
		db:        s.db,
		q:         tx,
		clock:     s.clock,
		baselines: s.baselines,
		staged:    make(map[string]baseline.Baseline),
	}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for patientID, b := range txStore.staged {
		s.baselines.Add(patientID, b)
	}
	return nil
}

// InsertSession persists a session. Empty SessionID and zero RecordedAt are
// filled in.
func (s *Store) InsertSession(ctx context.Context, rec *SessionRecord) error {
	if rec.SessionID == "" {
		rec.SessionID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.clock.Now()
	}
	f := rec.Features

	return s.retryOnBusy(func() error {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO sessions (
				session_id, patient_id, recorded_at, frame_count, duration_seconds,
				stride_length, cadence, gait_symmetry, tremor_frequency, tremor_amplitude,
				bradykinesia_score, deviation_from_baseline, resting_tremor, tremor_score
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.PatientID, rec.RecordedAt.UnixNano(), rec.FrameCount, rec.DurationSeconds,
			nullable(f.StrideLength), nullable(f.Cadence), f.GaitSymmetry,
			nullable(f.TremorFrequency), nullable(f.TremorAmplitude),
			f.BradykinesiaScore, nullable(f.DeviationFromBaseline), rec.RestingTremor, rec.TremorScore,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// SetSessionDeviation records the deviation score computed for a session.
func (s *Store) SetSessionDeviation(ctx context.Context, sessionID string, score float64) error {
	return s.retryOnBusy(func() error {
		res, err := s.q.ExecContext(ctx,
			`UPDATE sessions SET deviation_from_baseline = ? WHERE session_id = ?`, score, sessionID)
		if err != nil {
			return fmt.Errorf("update session deviation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil
	})
}

// ListSessionFeatures returns the feature vectors of a patient's sessions in
// chronological order, at most limit of them when limit > 0.
func (s *Store) ListSessionFeatures(ctx context.Context, patientID string, limit int) ([]baseline.Features, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT stride_length, cadence, gait_symmetry, tremor_frequency, tremor_amplitude,
		       bradykinesia_score, deviation_from_baseline
		FROM sessions
		WHERE patient_id = ?
		ORDER BY recorded_at ASC, rowid ASC
		LIMIT ?`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session features: %w", err)
	}
	defer rows.Close()

	var out []baseline.Features
	for rows.Next() {
		var f baseline.Features
		var stride, cadence, freq, amp, deviation sql.NullFloat64
		if err := rows.Scan(&stride, &cadence, &f.GaitSymmetry, &freq, &amp, &f.BradykinesiaScore, &deviation); err != nil {
			return nil, fmt.Errorf("scan session features: %w", err)
		}
		f.StrideLength = fromNull(stride)
		f.Cadence = fromNull(cadence)
		f.TremorFrequency = fromNull(freq)
		f.TremorAmplitude = fromNull(amp)
		f.DeviationFromBaseline = fromNull(deviation)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountSessions returns the number of stored sessions for a patient.
func (s *Store) CountSessions(ctx context.Context, patientID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE patient_id = ?`, patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// GetBaseline returns the patient's baseline, or ErrNotFound.
func (s *Store) GetBaseline(ctx context.Context, patientID string) (*baseline.Baseline, error) {
	if b, ok := s.staged[patientID]; ok {
		return &b, nil
	}
	if b, ok := s.baselines.Get(patientID); ok {
		return &b, nil
	}

	var (
		metricsJSON  string
		b            baseline.Baseline
		lastUpdated  int64
		isCalibrated bool
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT patient_id, metrics_json, session_count, is_calibrated, last_updated
		FROM baselines
		WHERE patient_id = ?`, patientID).Scan(
		&b.PatientID, &metricsJSON, &b.SessionCount, &isCalibrated, &lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("baseline for patient %s: %w", patientID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query baseline: %w", err)
	}

	var m baselineMetrics
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return nil, fmt.Errorf("decode baseline metrics: %w", err)
	}
	b.StrideLength = m.StrideLength
	b.Cadence = m.Cadence
	b.GaitSymmetry = m.GaitSymmetry
	b.Bradykinesia = m.Bradykinesia
	b.TremorFrequency = m.TremorFrequency
	b.TremorAmplitude = m.TremorAmplitude
	b.IsCalibrated = isCalibrated
	b.LastUpdated = time.Unix(0, lastUpdated).UTC()

	s.baselines.Add(patientID, b)
	return &b, nil
}

// SaveBaseline inserts or replaces the baseline of b.PatientID.
func (s *Store) SaveBaseline(ctx context.Context, b *baseline.Baseline) error {
	if b == nil || b.PatientID == "" {
		return errors.New("save baseline: patient id is required")
	}
	metricsJSON, err := json.Marshal(baselineMetrics{
		StrideLength:    b.StrideLength,
		Cadence:         b.Cadence,
		GaitSymmetry:    b.GaitSymmetry,
		Bradykinesia:    b.Bradykinesia,
		TremorFrequency: b.TremorFrequency,
		TremorAmplitude: b.TremorAmplitude,
	})
	if err != nil {
		return fmt.Errorf("encode baseline metrics: %w", err)
	}

	err = s.retryOnBusy(func() error {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO baselines (patient_id, metrics_json, session_count, is_calibrated, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(patient_id) DO UPDATE SET
				metrics_json = excluded.metrics_json,
				session_count = excluded.session_count,
				is_calibrated = excluded.is_calibrated,
				last_updated = excluded.last_updated`,
			b.PatientID, string(metricsJSON), b.SessionCount, b.IsCalibrated, b.LastUpdated.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("upsert baseline: %w", err)
		}
		return nil
	})
	if err != nil {
		if s.staged == nil {
			s.baselines.Remove(b.PatientID)
		}
		return err
	}

	cached := *b
	cached.LastUpdated = time.Unix(0, b.LastUpdated.UnixNano()).UTC()
	if s.staged != nil {
		s.staged[b.PatientID] = cached
		return nil
	}
	s.baselines.Add(b.PatientID, cached)
	return nil
}

// InsertAssessment persists a risk assessment. Empty AssessmentID and zero
// CreatedAt are filled in.
func (s *Store) InsertAssessment(ctx context.Context, rec *AssessmentRecord) error {
	if rec.AssessmentID == "" {
		rec.AssessmentID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now()
	}

	var recsJSON interface{}
	if len(rec.Recommendations) > 0 {
		data, err := json.Marshal(rec.Recommendations)
		if err != nil {
			return fmt.Errorf("encode recommendations: %w", err)
		}
		recsJSON = string(data)
	}

	return s.retryOnBusy(func() error {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO risk_assessments (
				assessment_id, session_id, patient_id, classification, score, confidence,
				message, flag_for_review, recommendations_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.AssessmentID, rec.SessionID, rec.PatientID, string(rec.Risk.Level),
			rec.Risk.Score, rec.Risk.Confidence, rec.Risk.Message, rec.Risk.FlagForReview,
			recsJSON, rec.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert risk assessment: %w", err)
		}
		return nil
	})
}

// ListAssessments returns a patient's assessments newest first, at most limit
// of them when limit > 0.
func (s *Store) ListAssessments(ctx context.Context, patientID string, limit int) ([]*AssessmentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT assessment_id, session_id, patient_id, classification, score, confidence,
		       message, flag_for_review, recommendations_json, created_at
		FROM risk_assessments
		WHERE patient_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query risk assessments: %w", err)
	}
	defer rows.Close()

	var out []*AssessmentRecord
	for rows.Next() {
		var (
			rec       AssessmentRecord
			level     string
			recsJSON  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(
			&rec.AssessmentID, &rec.SessionID, &rec.PatientID, &level,
			&rec.Risk.Score, &rec.Risk.Confidence, &rec.Risk.Message, &rec.Risk.FlagForReview,
			&recsJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan risk assessment: %w", err)
		}
		rec.Risk.Level = baseline.RiskLevel(level)
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		if recsJSON.Valid && recsJSON.String != "" {
			if err := json.Unmarshal([]byte(recsJSON.String), &rec.Recommendations); err != nil {
				return nil, fmt.Errorf("decode recommendations: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ListTrend returns one point per stored session in chronological order,
// joined with the session's assessment when there is one.
func (s *Store) ListTrend(ctx context.Context, patientID string) ([]TrendPoint, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT s.session_id, s.recorded_at, s.gait_symmetry, s.tremor_frequency,
		       s.bradykinesia_score, COALESCE(r.classification, '')
		FROM sessions s
		LEFT JOIN risk_assessments r ON r.session_id = s.session_id
		WHERE s.patient_id = ?
		ORDER BY s.recorded_at ASC, s.rowid ASC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var (
			p          TrendPoint
			recordedAt int64
			freq       sql.NullFloat64
			level      string
		)
		if err := rows.Scan(&p.SessionID, &recordedAt, &p.GaitSymmetry, &freq, &p.BradykinesiaScore, &level); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		p.RecordedAt = time.Unix(0, recordedAt).UTC()
		p.TremorFrequency = fromNull(freq)
		p.RiskLevel = baseline.RiskLevel(level)
		out = append(out, p)
	}
	return out, rows.Err()
}

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as busy. Inside a transaction fn runs once; the
// busy_timeout pragma already waits for the write lock.
func (s *Store) retryOnBusy(fn func() error) error {
	if s.staged != nil {
		return fn()
	}
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if !isBusy(err) {
			return err
		}
		s.clock.Sleep(busyBackoff << attempt)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlitedriver.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_BUSY {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
