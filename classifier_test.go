package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a base URL", func(t *testing.T) {
		_, err := NewHTTPClassifier(HTTPClassifierOptions{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "base URL required")
	})

	t.Run("classifies a set in one batch request", func(t *testing.T) {
		var gotPath string
		var gotItems []classifyItem
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotItems))
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"prediction":    1,
						"class_name":    "good_form",
						"confidence":    0.93,
						"probabilities": []float64{0.07, 0.93},
						"exercise_type": "CONCENTRATION_CURLS",
						"model_used":    "concentration_curls_rf.pkl",
					},
					{
						"prediction":    0,
						"class_name":    "partial_rom",
						"confidence":    0.61,
						"probabilities": []float64{0.61, 0.39},
						"exercise_type": "CONCENTRATION_CURLS",
						"model_used":    "concentration_curls_rf.pkl",
					},
				},
			})
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		result, err := classifier.ClassifySet(ctx, "CONCENTRATION_CURLS", []*RepSummary{
			{RepNumber: 1, SetNumber: 2, Features: map[string]float64{"rom": 0.9}},
			{RepNumber: 2, SetNumber: 2, Features: map[string]float64{"rom": 0.4}},
		})
		require.NoError(t, err)

		require.Equal(t, "/batch-classify", gotPath)
		require.Len(t, gotItems, 2)
		require.Equal(t, "CONCENTRATION_CURLS", gotItems[0].ExerciseType)
		require.InDelta(t, 0.9, gotItems[0].Features["rom"], 0.0001)

		require.Equal(t, 2, result.SetNumber)
		require.Len(t, result.Classifications, 2)
		require.Equal(t, "good_form", result.Classifications[0].Label)
		require.InDelta(t, 0.93, result.Classifications[0].Confidence, 0.0001)
		require.Equal(t, []float64{0.61, 0.39}, result.Classifications[1].Probabilities)
	})

	t.Run("per rep errors leave that rep unclassified", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"error": "model not loaded", "exercise_type": "LATERAL_PULLDOWN"},
					{"prediction": 1, "class_name": "good_form", "confidence": 0.8},
				},
			})
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		result, err := classifier.ClassifySet(ctx, "LATERAL_PULLDOWN", []*RepSummary{
			{RepNumber: 1, SetNumber: 1},
			{RepNumber: 2, SetNumber: 1},
		})
		require.NoError(t, err)
		require.Len(t, result.Classifications, 1)
		require.Equal(t, 2, result.Classifications[0].RepNumber)
	})

	t.Run("result count mismatch is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}})
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = classifier.ClassifySet(ctx, "CONCENTRATION_CURLS", []*RepSummary{{RepNumber: 1}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "0 results for 1 reps")
	})

	t.Run("server error is transient network", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = classifier.ClassifySet(ctx, "CONCENTRATION_CURLS", []*RepSummary{{RepNumber: 1}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "status 503")
	})

	t.Run("empty set rejected", func(t *testing.T) {
		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: "http://localhost:1"})
		require.NoError(t, err)
		_, err = classifier.ClassifySet(ctx, "CONCENTRATION_CURLS", nil)
		require.Error(t, err)
	})

	t.Run("lists models", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/models", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{
					{"exercise_type": "CONCENTRATION_CURLS", "model_file": "concentration_curls_rf.pkl", "loaded": true},
					{"exercise_type": "OVERHEAD_EXTENSIONS", "model_file": "overhead_extensions_rf.pkl", "loaded": false},
				},
			})
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		models, err := classifier.ListModels(ctx)
		require.NoError(t, err)
		require.Len(t, models, 2)
		require.Equal(t, "CONCENTRATION_CURLS", models[0].ExerciseType)
		require.True(t, models[0].Loaded)
		require.False(t, models[1].Loaded)
	})

	t.Run("health endpoint", func(t *testing.T) {
		healthy := true
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/", r.URL.Path)
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		defer server.Close()

		classifier, err := NewHTTPClassifier(HTTPClassifierOptions{BaseURL: server.URL})
		require.NoError(t, err)

		require.NoError(t, classifier.Health(ctx))
		healthy = false
		require.Error(t, classifier.Health(ctx))
	})
}
