package session

import (
	"encoding/json"
	"sync"
	"time"
)

// RepRecord is one recorded repetition within the session artifact. The
// classification fields stay zero until a classification result is merged in.
type RepRecord struct {
	RepNumber       int                `json:"rep_number"`
	SetNumber       int                `json:"set_number"`
	PeakIndex       int                `json:"peak_index"`
	ValleyIndex     int                `json:"valley_index"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	Features        map[string]float64 `json:"features,omitempty"`
	Label           string             `json:"label,omitempty"`
	Confidence      float64            `json:"confidence,omitempty"`
	Probabilities   []float64          `json:"probabilities,omitempty"`
}

// Copy returns a shallow copy of the rep record.
func (r *RepRecord) Copy() *RepRecord {
	dup := *r
	return &dup
}

// SetRecord groups the repetitions of one set.
type SetRecord struct {
	SetNumber int          `json:"set_number"`
	Reps      []*RepRecord `json:"reps"`
}

// ArtifactSnapshot is the fully JSON-serializable form of a session
// artifact, used for publishing to the durable store.
type ArtifactSnapshot struct {
	SessionID      string       `json:"session_id"`
	Exercise       string       `json:"exercise"`
	StartedAt      time.Time    `json:"started_at,omitzero"`
	Sets           []*SetRecord `json:"sets"`
	Raw            []float64    `json:"raw,omitempty"`
	Filtered       []float64    `json:"filtered,omitempty"`
	Chart          []float64    `json:"chart,omitempty"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
}

// SessionArtifact is the accumulating in-memory representation of a session:
// sets, repetitions, per-rep classification, and the derived signal buffers.
// It is exclusively owned by the active session; classification results merge
// into it keyed by (set number, rep number), which makes the merge idempotent
// and commutative regardless of arrival order.
type SessionArtifact struct {
	sessionID      string
	exercise       string
	startedAt      time.Time
	sets           []*SetRecord
	raw            []float64
	filtered       []float64
	chart          []float64
	elapsedSeconds int
	mutex          sync.RWMutex
}

// NewSessionArtifact creates an empty artifact for a session.
func NewSessionArtifact(sessionID, exercise string) *SessionArtifact {
	return &SessionArtifact{
		sessionID: sessionID,
		exercise:  exercise,
		startedAt: time.Now(),
	}
}

// SessionID returns the owning session's ID
func (a *SessionArtifact) SessionID() string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.sessionID
}

// Exercise returns the exercise code being recorded
func (a *SessionArtifact) Exercise() string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.exercise
}

// AppendRep records a completed repetition in its set, creating the set
// record on first use.
func (a *SessionArtifact) AppendRep(summary *RepSummary) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	set := a.setLocked(summary.SetNumber)
	set.Reps = append(set.Reps, &RepRecord{
		RepNumber:       summary.RepNumber,
		SetNumber:       summary.SetNumber,
		PeakIndex:       summary.PeakIndex,
		ValleyIndex:     summary.ValleyIndex,
		DurationSeconds: summary.DurationSeconds,
		Features:        summary.Features,
	})
}

// AppendSamples appends raw and filtered signal samples.
func (a *SessionArtifact) AppendSamples(raw, filtered []float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.raw = append(a.raw, raw...)
	a.filtered = append(a.filtered, filtered...)
}

// AppendChart appends downsampled chart points.
func (a *SessionArtifact) AppendChart(points []float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.chart = append(a.chart, points...)
}

// SampleCount returns the number of buffered raw samples.
func (a *SessionArtifact) SampleCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.raw)
}

// ChartLength returns the number of buffered chart points.
func (a *SessionArtifact) ChartLength() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.chart)
}

// RepCount returns the total number of recorded repetitions.
func (a *SessionArtifact) RepCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	count := 0
	for _, set := range a.sets {
		count += len(set.Reps)
	}
	return count
}

// SetCount returns the number of sets with at least one repetition.
func (a *SessionArtifact) SetCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.sets)
}

// SetElapsed updates the elapsed-seconds counter.
func (a *SessionArtifact) SetElapsed(seconds int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.elapsedSeconds = seconds
}

// Elapsed returns the elapsed-seconds counter.
func (a *SessionArtifact) Elapsed() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.elapsedSeconds
}

// RepsForSet returns summaries for the repetitions of one set, in record
// order. Used to build classification payloads.
func (a *SessionArtifact) RepsForSet(setNumber int) []*RepSummary {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	for _, set := range a.sets {
		if set.SetNumber != setNumber {
			continue
		}
		reps := make([]*RepSummary, 0, len(set.Reps))
		for _, rep := range set.Reps {
			reps = append(reps, &RepSummary{
				RepNumber:       rep.RepNumber,
				SetNumber:       rep.SetNumber,
				PeakIndex:       rep.PeakIndex,
				ValleyIndex:     rep.ValleyIndex,
				DurationSeconds: rep.DurationSeconds,
				Features:        rep.Features,
			})
		}
		return reps
	}
	return nil
}

// TruncateTo discards buffered signal data beyond the checkpoint boundary.
// Repetition records are only appended on confirmed completion, so they are
// already consistent with the checkpoint and are left untouched.
func (a *SessionArtifact) TruncateTo(bufferedSampleIndex, fullChartLength int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if bufferedSampleIndex < len(a.raw) {
		a.raw = a.raw[:bufferedSampleIndex]
	}
	if bufferedSampleIndex < len(a.filtered) {
		a.filtered = a.filtered[:bufferedSampleIndex]
	}
	if fullChartLength < len(a.chart) {
		a.chart = a.chart[:fullChartLength]
	}
}

// MergeClassification merges a set's classification result into the matching
// repetitions, keyed by (set number, rep number). Only the classification
// fields are overwritten, so replaying the same result is a no-op and results
// for different sets commute.
func (a *SessionArtifact) MergeClassification(result *SetClassification) {
	if result == nil {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	set := a.setLocked(result.SetNumber)
	byRep := make(map[int]*Classification, len(result.Classifications))
	for _, c := range result.Classifications {
		byRep[c.RepNumber] = c
	}
	for _, rep := range set.Reps {
		c, ok := byRep[rep.RepNumber]
		if !ok {
			continue
		}
		rep.Label = c.Label
		rep.Confidence = c.Confidence
		rep.Probabilities = c.Probabilities
	}
}

// Snapshot returns a deep copy of the artifact in serializable form.
func (a *SessionArtifact) Snapshot() *ArtifactSnapshot {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	sets := make([]*SetRecord, 0, len(a.sets))
	for _, set := range a.sets {
		reps := make([]*RepRecord, 0, len(set.Reps))
		for _, rep := range set.Reps {
			reps = append(reps, rep.Copy())
		}
		sets = append(sets, &SetRecord{SetNumber: set.SetNumber, Reps: reps})
	}
	return &ArtifactSnapshot{
		SessionID:      a.sessionID,
		Exercise:       a.exercise,
		StartedAt:      a.startedAt,
		Sets:           sets,
		Raw:            append([]float64(nil), a.raw...),
		Filtered:       append([]float64(nil), a.filtered...),
		Chart:          append([]float64(nil), a.chart...),
		ElapsedSeconds: a.elapsedSeconds,
	}
}

// MarshalJSON serializes the artifact via its snapshot.
func (a *SessionArtifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Snapshot())
}

// setLocked returns the set record for a set number, creating it in order if
// needed. Caller must hold the mutex.
func (a *SessionArtifact) setLocked(setNumber int) *SetRecord {
	for _, set := range a.sets {
		if set.SetNumber == setNumber {
			return set
		}
	}
	set := &SetRecord{SetNumber: setNumber}
	a.sets = append(a.sets, set)
	return set
}
