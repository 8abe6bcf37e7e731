package vecindex

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
)

// clusteredVectors generates vectors in tight clusters around well
// separated anchor points, one slice entry per vector.
func clusteredVectors(t *testing.T, clusters, perCluster, dim int) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 0, clusters*perCluster)
	for c := 0; c < clusters; c++ {
		anchor := make([]float32, dim)
		anchor[c%dim] = float32(10 * (c + 1))
		for i := 0; i < perCluster; i++ {
			vec := make([]float32, dim)
			for d := range vec {
				vec[d] = anchor[d] + rng.Float32()*0.5
			}
			vectors = append(vectors, vec)
		}
	}
	return vectors
}

func TestIVF_RequiresTraining(t *testing.T) {
	ix := NewIVF(2, 1)

	if err := ix.Add([][]float32{{1, 2}}); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Add() error = %v, want ErrNotTrained", err)
	}
	if _, err := ix.Search([]float32{1, 2}, 1); !errors.Is(err, ErrNotTrained) {
		t.Errorf("Search() error = %v, want ErrNotTrained", err)
	}
}

func TestIVF_ClusterCountExceedsCorpus(t *testing.T) {
	// 8 clusters demanded over 3 vectors must surface a configuration
	// error, never silently fall back to the exact variant.
	ix := NewIVF(8, 1)
	sample := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	err := ix.Train(sample)
	if err == nil {
		t.Fatal("Train() succeeded, want configuration error")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Train() error = %v, want *ConfigError", err)
	}
}

func TestIVF_AutoNList(t *testing.T) {
	tests := []struct {
		corpus   int
		expected int
	}{
		{1, 1},
		{3, 1},
		{50, 5},
		{1000, 100},
		{50000, 100},
	}
	for _, tt := range tests {
		if got := AutoNList(tt.corpus); got != tt.expected {
			t.Errorf("AutoNList(%d) = %d, want %d", tt.corpus, got, tt.expected)
		}
	}
}

func TestIVF_TrainOnEmptySample(t *testing.T) {
	ix := NewIVF(0, 1)
	var cfgErr *ConfigError
	if err := ix.Train(nil); !errors.As(err, &cfgErr) {
		t.Errorf("Train(nil) error = %v, want *ConfigError", err)
	}
}

func TestIVF_SearchFindsNearest(t *testing.T) {
	vectors := clusteredVectors(t, 4, 25, 8)

	ix := NewIVF(4, 2)
	if err := ix.Train(vectors); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if err := ix.Add(vectors); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if ix.Count() != len(vectors) {
		t.Fatalf("Count() = %d, want %d", ix.Count(), len(vectors))
	}

	// Querying with a stored vector must return that row first with
	// zero distance: its own cluster is always the closest probe.
	query := vectors[30]
	hits, err := ix.Search(query, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("Search() returned no hits")
	}
	if hits[0].Row != 30 || hits[0].Distance != 0 {
		t.Errorf("hits[0] = %+v, want row 30 at distance 0", hits[0])
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].Distance > hits[i].Distance {
			t.Errorf("hits not in ascending distance order at %d", i)
		}
	}
}

func TestIVF_EmptyAfterTrain(t *testing.T) {
	ix := NewIVF(2, 1)
	if err := ix.Train([][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	hits, err := ix.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search() on empty index = %+v, want empty", hits)
	}
}

func TestIVF_WriteReadRoundTrip(t *testing.T) {
	vectors := clusteredVectors(t, 3, 20, 4)

	ix := NewIVF(3, 2)
	if err := ix.Train(vectors); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if err := ix.Add(vectors); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "ivf.index")
	if err := ix.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	restored, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if restored.Type() != TypeIVF {
		t.Errorf("Type() = %q, want %q", restored.Type(), TypeIVF)
	}
	if restored.Count() != ix.Count() || restored.Dimension() != ix.Dimension() {
		t.Errorf("Count/Dimension = %d/%d, want %d/%d",
			restored.Count(), restored.Dimension(), ix.Count(), ix.Dimension())
	}

	query := vectors[10]
	orig, _ := ix.Search(query, 5)
	got, err := restored.Search(query, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != len(orig) {
		t.Fatalf("got %d hits, want %d", len(got), len(orig))
	}
	for i := range got {
		if got[i] != orig[i] {
			t.Errorf("hits[%d] = %+v, want %+v", i, got[i], orig[i])
		}
	}
}
