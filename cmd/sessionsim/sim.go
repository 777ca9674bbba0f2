package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/MarvinCayosa/applift-session"
)

// network simulates internet availability for every remote collaborator.
type network struct {
	up atomic.Bool
}

func newNetwork() *network {
	n := &network{}
	n.up.Store(true)
	return n
}

func (n *network) err(op string) error {
	return fmt.Errorf("%s: connection refused", op)
}

// gatedObjectStore fails puts while the simulated network is down.
type gatedObjectStore struct {
	net   *network
	inner session.ObjectStore
}

func (s *gatedObjectStore) PutObject(ctx context.Context, path string, data []byte) error {
	if !s.net.up.Load() {
		return s.net.err("put " + path)
	}
	return s.inner.PutObject(ctx, path, data)
}

// gatedMetadataStore fails patches while the simulated network is down.
type gatedMetadataStore struct {
	net   *network
	inner session.MetadataStore
}

func (s *gatedMetadataStore) PatchSessionMetadata(ctx context.Context, sessionID string, fields map[string]any) error {
	if !s.net.up.Load() {
		return s.net.err("patch metadata")
	}
	return s.inner.PatchSessionMetadata(ctx, sessionID, fields)
}

// simClassifier labels every repetition deterministically from its features.
type simClassifier struct {
	net *network
}

var formLabels = []string{"Good Form", "Partial Range", "Too Fast"}

func (c *simClassifier) ClassifySet(ctx context.Context, exercise string, reps []*session.RepSummary) (*session.SetClassification, error) {
	if !c.net.up.Load() {
		return nil, c.net.err("classify")
	}
	result := &session.SetClassification{Exercise: exercise}
	if len(reps) > 0 {
		result.SetNumber = reps[0].SetNumber
	}
	for _, rep := range reps {
		label := formLabels[rep.RepNumber%len(formLabels)]
		result.Classifications = append(result.Classifications, &session.Classification{
			RepNumber:  rep.RepNumber,
			Label:      label,
			Confidence: 0.8,
		})
	}
	return result, nil
}

// simDetector produces synthetic repetition summaries and honors the
// truncate primitive the rollback procedure relies on.
type simDetector struct {
	mutex       sync.Mutex
	repCount    int
	setNumber   int
	sampleIndex int
}

func newSimDetector() *simDetector {
	return &simDetector{setNumber: 1}
}

func (d *simDetector) feedSamples(count int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.sampleIndex += count
}

func (d *simDetector) startSet(setNumber int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.setNumber = setNumber
	d.repCount = 0
}

func (d *simDetector) CompleteRep(peakIndex, valleyIndex int) (*session.RepSummary, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.repCount++
	if peakIndex == 0 && valleyIndex == 0 {
		peakIndex = d.sampleIndex - 40
		valleyIndex = d.sampleIndex
	}
	return &session.RepSummary{
		RepNumber:       d.repCount,
		SetNumber:       d.setNumber,
		PeakIndex:       peakIndex,
		ValleyIndex:     valleyIndex,
		DurationSeconds: 1.5,
		Features: map[string]float64{
			"rom":        math.Abs(float64(peakIndex - valleyIndex)),
			"smoothness": 0.92,
			"duration":   1.5,
		},
	}, nil
}

func (d *simDetector) Truncate(toRepCount, toSampleIndex int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if toRepCount < d.repCount {
		d.repCount = toRepCount
	}
	if toSampleIndex < d.sampleIndex {
		d.sampleIndex = toSampleIndex
	}
	return nil
}

// startHeartbeatStub serves the probe's heartbeat target, answering 503
// while the simulated network is down.
func startHeartbeatStub(net_ *network) (string, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !net_.up.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"status":"healthy"}`)
		}),
	}
	go server.Serve(listener)
	stop := func() { server.Close() }
	return "http://" + listener.Addr().String(), stop, nil
}
