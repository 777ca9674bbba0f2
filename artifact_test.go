package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestSessionArtifact(t *testing.T) {
	t.Run("append reps groups by set", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "CONCENTRATION_CURLS")
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1, PeakIndex: 40, ValleyIndex: 80})
		artifact.AppendRep(&RepSummary{RepNumber: 2, SetNumber: 1, PeakIndex: 120, ValleyIndex: 160})
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 2, PeakIndex: 240, ValleyIndex: 280})

		require.Equal(t, 3, artifact.RepCount())
		require.Equal(t, 2, artifact.SetCount())
		require.Len(t, artifact.RepsForSet(1), 2)
		require.Len(t, artifact.RepsForSet(2), 1)
		require.Nil(t, artifact.RepsForSet(3))
	})

	t.Run("samples and chart accumulate", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "CONCENTRATION_CURLS")
		artifact.AppendSamples([]float64{1, 2, 3}, []float64{1.1, 2.1, 3.1})
		artifact.AppendSamples([]float64{4}, []float64{4.1})
		artifact.AppendChart([]float64{0.5, 0.6})

		require.Equal(t, 4, artifact.SampleCount())
		require.Equal(t, 2, artifact.ChartLength())
	})

	t.Run("truncate discards data past the boundary", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "LATERAL_PULLDOWN")
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
		artifact.AppendSamples(make([]float64, 500), make([]float64, 500))
		artifact.AppendChart(make([]float64, 50))

		artifact.TruncateTo(300, 30)
		require.Equal(t, 300, artifact.SampleCount())
		require.Equal(t, 30, artifact.ChartLength())
		require.Equal(t, 1, artifact.RepCount(), "confirmed reps survive truncation")
	})

	t.Run("truncate past the end is a no-op", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "LATERAL_PULLDOWN")
		artifact.AppendSamples([]float64{1, 2}, []float64{1, 2})
		artifact.TruncateTo(100, 100)
		require.Equal(t, 2, artifact.SampleCount())
	})

	t.Run("merge classification fills matching reps only", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "OVERHEAD_EXTENSIONS")
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1, PeakIndex: 40})
		artifact.AppendRep(&RepSummary{RepNumber: 2, SetNumber: 1, PeakIndex: 120})

		artifact.MergeClassification(&SetClassification{
			SetNumber: 1,
			Classifications: []*Classification{
				{RepNumber: 2, Label: "good_form", Confidence: 0.91, Probabilities: []float64{0.09, 0.91}},
			},
		})

		snapshot := artifact.Snapshot()
		reps := snapshot.Sets[0].Reps
		require.Empty(t, reps[0].Label)
		require.Equal(t, "good_form", reps[1].Label)
		require.InDelta(t, 0.91, reps[1].Confidence, 0.0001)
		require.Equal(t, 40, reps[0].PeakIndex, "recording fields untouched by merge")
	})

	t.Run("snapshot is a deep copy", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "CONCENTRATION_CURLS")
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
		snapshot := artifact.Snapshot()
		snapshot.Sets[0].Reps[0].Label = "mutated"

		require.Empty(t, artifact.Snapshot().Sets[0].Reps[0].Label)
	})

	t.Run("marshals via snapshot", func(t *testing.T) {
		artifact := NewSessionArtifact("sess_1", "CONCENTRATION_CURLS")
		artifact.AppendRep(&RepSummary{RepNumber: 1, SetNumber: 1})
		data, err := json.Marshal(artifact)
		require.NoError(t, err)

		var decoded ArtifactSnapshot
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, "sess_1", decoded.SessionID)
		require.Len(t, decoded.Sets, 1)
	})
}

// Classification merges are keyed by (set, rep), so replaying the same
// result is a no-op and results for different sets can arrive in any order.
func TestMergeClassificationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	buildArtifact := func(setSizes []int) *SessionArtifact {
		artifact := NewSessionArtifact("sess_prop", "CONCENTRATION_CURLS")
		for setIndex, size := range setSizes {
			for rep := 1; rep <= size; rep++ {
				artifact.AppendRep(&RepSummary{RepNumber: rep, SetNumber: setIndex + 1})
			}
		}
		return artifact
	}

	buildResults := func(setSizes []int) []*SetClassification {
		results := make([]*SetClassification, 0, len(setSizes))
		for setIndex, size := range setSizes {
			result := &SetClassification{SetNumber: setIndex + 1}
			for rep := 1; rep <= size; rep++ {
				result.Classifications = append(result.Classifications, &Classification{
					RepNumber:  rep,
					Label:      fmt.Sprintf("label_%d_%d", setIndex+1, rep),
					Confidence: 0.8,
				})
			}
			results = append(results, result)
		}
		return results
	}

	properties.Property("merge is idempotent", prop.ForAll(
		func(setSizes []int) bool {
			artifact := buildArtifact(setSizes)
			results := buildResults(setSizes)
			for _, result := range results {
				artifact.MergeClassification(result)
			}
			once, _ := json.Marshal(artifact)
			for _, result := range results {
				artifact.MergeClassification(result)
			}
			twice, _ := json.Marshal(artifact)
			return string(once) == string(twice)
		},
		gen.SliceOfN(3, gen.IntRange(1, 6)),
	))

	properties.Property("merge order does not matter", prop.ForAll(
		func(setSizes []int) bool {
			results := buildResults(setSizes)

			forward := buildArtifact(setSizes)
			for i := 0; i < len(results); i++ {
				forward.MergeClassification(results[i])
			}
			reverse := buildArtifact(setSizes)
			for i := len(results) - 1; i >= 0; i-- {
				reverse.MergeClassification(results[i])
			}
			a, _ := json.Marshal(forward.Snapshot().Sets)
			b, _ := json.Marshal(reverse.Snapshot().Sets)
			return string(a) == string(b)
		},
		gen.SliceOfN(3, gen.IntRange(1, 6)),
	))

	properties.TestingRun(t)
}
