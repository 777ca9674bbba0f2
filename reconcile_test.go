package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeClassifier returns canned labels without a network round trip.
type fakeClassifier struct {
	err   error
	calls int
	mutex sync.Mutex
}

func (c *fakeClassifier) ClassifySet(ctx context.Context, exercise string, reps []*RepSummary) (*SetClassification, error) {
	c.mutex.Lock()
	c.calls++
	c.mutex.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	result := &SetClassification{Exercise: exercise}
	for _, rep := range reps {
		result.SetNumber = rep.SetNumber
		result.Classifications = append(result.Classifications, &Classification{
			RepNumber:  rep.RepNumber,
			Label:      fmt.Sprintf("label_s%d_r%d", rep.SetNumber, rep.RepNumber),
			Confidence: 0.8,
		})
	}
	return result, nil
}

// failingObjectStore rejects every put.
type failingObjectStore struct{}

func (s *failingObjectStore) PutObject(ctx context.Context, path string, data []byte) error {
	return errors.New("connection refused")
}

type reconcileFixture struct {
	queue      *MemoryJobQueue
	objects    *MemoryObjectStore
	metadata   *MemoryMetadataStore
	classifier *fakeClassifier
	artifact   *SessionArtifact
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	return &reconcileFixture{
		queue:      NewMemoryJobQueue(),
		objects:    NewMemoryObjectStore(),
		metadata:   NewMemoryMetadataStore(),
		classifier: &fakeClassifier{},
		artifact:   NewSessionArtifact("sess_1", "CONCENTRATION_CURLS"),
	}
}

func (f *reconcileFixture) reconciler(t *testing.T, callbacks SessionCallbacks) *Reconciler {
	t.Helper()
	reconciler, err := NewReconciler(ReconcilerOptions{
		Queue:      f.queue,
		Objects:    f.objects,
		Metadata:   f.metadata,
		Classifier: f.classifier,
		Callbacks:  callbacks,
	})
	require.NoError(t, err)
	return reconciler
}

func (f *reconcileFixture) enqueueUpload(t *testing.T, key int, path, content string) {
	t.Helper()
	payload, err := EncodeJobPayload(&JobPayload{
		Type: JobTypeUpload, FilePath: path, Content: []byte(content),
	})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(context.Background(), "sess_1", JobTypeUpload, payload, key)
	require.NoError(t, err)
}

func (f *reconcileFixture) enqueueClassify(t *testing.T, key, setNumber int, reps []*RepSummary) {
	t.Helper()
	payload, err := EncodeJobPayload(&JobPayload{
		Type: JobTypeClassifySet, Exercise: "CONCENTRATION_CURLS",
		SetNumber: setNumber, Reps: reps,
	})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(context.Background(), "sess_1", JobTypeClassifySet, payload, key)
	require.NoError(t, err)
}

func TestReconcilerValidation(t *testing.T) {
	_, err := NewReconciler(ReconcilerOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "job queue is required")

	_, err = NewReconciler(ReconcilerOptions{Queue: NewMemoryJobQueue()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "object store is required")
}

func TestReconcilerDrainsAndFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)

	f.artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
	f.artifact.AppendRep(&RepSummary{RepNumber: 2, SetNumber: 1})
	f.artifact.SetElapsed(63)

	f.enqueueUpload(t, 1, "sessions/sess_1/rep-1.json", `{"rep":1}`)
	f.enqueueUpload(t, 2, "sessions/sess_1/rep-2.json", `{"rep":2}`)
	f.enqueueClassify(t, 3, 1, []*RepSummary{
		{RepNumber: 1, SetNumber: 1}, {RepNumber: 2, SetNumber: 1},
	})

	var finished []*ReconcileFinishedEvent
	callbacks := &recordingCallbacks{onReconcileFinished: func(e *ReconcileFinishedEvent) {
		finished = append(finished, e)
	}}

	result, err := f.reconciler(t, callbacks).Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Equal(t, 2, result.Uploads.Succeeded)
	require.Equal(t, 1, result.Classifies.Succeeded)
	require.Equal(t, []int{1}, result.MergedSets)
	require.True(t, result.Published)
	require.True(t, result.Finalized)

	// Queued rep files landed.
	data, ok := f.objects.Get("sessions/sess_1/rep-1.json")
	require.True(t, ok)
	require.Equal(t, `{"rep":1}`, string(data))

	// The republished artifact carries the merged labels.
	published, ok := f.objects.Get("sessions/sess_1/session.json")
	require.True(t, ok)
	var snapshot ArtifactSnapshot
	require.NoError(t, json.Unmarshal(published, &snapshot))
	require.Equal(t, "label_s1_r1", snapshot.Sets[0].Reps[0].Label)
	require.Equal(t, "label_s1_r2", snapshot.Sets[0].Reps[1].Label)

	// Metadata finalized.
	fields := f.metadata.Get("sess_1")
	require.Equal(t, "completed", fields["status"])
	require.Equal(t, 2, fields["rep_count"])
	require.Equal(t, 63, fields["duration_seconds"])

	require.Len(t, finished, 1)
	require.Equal(t, "sess_1", finished[0].SessionID)

	// Nothing left queued.
	pending, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestReconcilerPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	f.artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})

	f.enqueueUpload(t, 1, "sessions/sess_1/rep-1.json", `{"rep":1}`)
	f.enqueueClassify(t, 2, 1, []*RepSummary{{RepNumber: 1, SetNumber: 1}})
	f.classifier.err = errors.New("model service down")

	var finished int
	callbacks := &recordingCallbacks{onReconcileFinished: func(*ReconcileFinishedEvent) { finished++ }}

	result, err := f.reconciler(t, callbacks).Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.False(t, result.Complete)
	require.Equal(t, 1, result.Uploads.Succeeded, "uploads drain despite classify failure")
	require.Equal(t, 1, result.Classifies.Failed)
	require.Empty(t, result.MergedSets)
	require.Zero(t, finished, "no completion callback while work remains")

	// The classify job waits for a future pass; the upload is gone.
	pending, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, JobTypeClassifySet, pending[0].Type)

	// Recovery: service comes back, the next pass completes.
	f.classifier.err = nil
	result, err = f.reconciler(t, callbacks).Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Equal(t, []int{1}, result.MergedSets)
	require.Equal(t, 1, finished)
}

func TestReconcilerRepublishFailureRetries(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	f.artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})

	reconciler, err := NewReconciler(ReconcilerOptions{
		Queue:      f.queue,
		Objects:    &failingObjectStore{},
		Metadata:   f.metadata,
		Classifier: f.classifier,
	})
	require.NoError(t, err)

	result, err := reconciler.Reconcile(ctx, f.artifact)
	require.NoError(t, err, "publish failure is retried, not fatal")
	require.False(t, result.Published)
	require.False(t, result.Finalized)
	require.False(t, result.Complete)
	require.Nil(t, f.metadata.Get("sess_1"), "finalize never runs before publish")
}

func TestReconcilerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	f.artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
	f.enqueueClassify(t, 1, 1, []*RepSummary{{RepNumber: 1, SetNumber: 1}})

	reconciler := f.reconciler(t, nil)
	first, err := reconciler.Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.True(t, first.Complete)
	firstPublished, _ := f.objects.Get("sessions/sess_1/session.json")

	// A second pass with an empty queue re-publishes the same artifact and
	// re-applies the same merge patch without changing anything.
	second, err := reconciler.Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.True(t, second.Complete)
	require.Equal(t, 1, f.classifier.calls, "no re-classification of drained jobs")

	secondPublished, _ := f.objects.Get("sessions/sess_1/session.json")
	require.JSONEq(t, string(firstPublished), string(secondPublished))
	require.Equal(t, "completed", f.metadata.Get("sess_1")["status"])
}

func TestReconcilerLeavesOtherSessionsJobsPending(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)
	f.artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
	f.enqueueClassify(t, 1, 1, []*RepSummary{{RepNumber: 1, SetNumber: 1}})

	// A stale job from another session shares the queue and the set number.
	// Only that session's own pass may consume it; draining it here would
	// lose its classification for good.
	payload, err := EncodeJobPayload(&JobPayload{
		Type: JobTypeClassifySet, Exercise: "LATERAL_PULLDOWN",
		SetNumber: 1, Reps: []*RepSummary{{RepNumber: 1, SetNumber: 1}},
	})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, "sess_other", JobTypeClassifySet, payload, 1)
	require.NoError(t, err)

	result, err := f.reconciler(t, nil).Reconcile(ctx, f.artifact)
	require.NoError(t, err)
	require.True(t, result.Complete, "other sessions' jobs do not block completion")
	require.Equal(t, []int{1}, result.MergedSets)
	require.Equal(t, "label_s1_r1", f.artifact.Snapshot().Sets[0].Reps[0].Label)
	require.Equal(t, 1, f.classifier.calls, "only this session's set classified")

	pending, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "sess_other", pending[0].SessionID)
}

// recordingCallbacks captures callback invocations for assertions.
type recordingCallbacks struct {
	BaseSessionCallbacks
	onReconcileFinished func(*ReconcileFinishedEvent)
}

func (c *recordingCallbacks) OnReconcileFinished(ctx context.Context, event *ReconcileFinishedEvent) {
	if c.onReconcileFinished != nil {
		c.onReconcileFinished(event)
	}
}
