package vecindex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlat_AddAssignsSequentialRows(t *testing.T) {
	ix := NewFlat()

	if err := ix.Add([][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := ix.Add([][]float32{{1, 1}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if ix.Count() != 3 {
		t.Errorf("Count() = %d, want 3", ix.Count())
	}

	hits, err := ix.Search([]float32{1, 1}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 || hits[0].Row != 2 {
		t.Errorf("Search() = %+v, want row 2", hits)
	}
	if hits[0].Distance != 0 {
		t.Errorf("Distance = %v, want 0", hits[0].Distance)
	}
}

func TestFlat_SearchOrdering(t *testing.T) {
	ix := NewFlat()
	if err := ix.Add([][]float32{{0, 0}, {3, 0}, {1, 0}, {2, 0}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	hits, err := ix.Search([]float32{0, 0}, 4)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	wantRows := []int{0, 2, 3, 1}
	if len(hits) != len(wantRows) {
		t.Fatalf("got %d hits, want %d", len(hits), len(wantRows))
	}
	for i, hit := range hits {
		if hit.Row != wantRows[i] {
			t.Errorf("hits[%d].Row = %d, want %d", i, hit.Row, wantRows[i])
		}
		if i > 0 && hits[i-1].Distance > hit.Distance {
			t.Errorf("hits not in ascending distance order at %d", i)
		}
	}
}

func TestFlat_SearchEdgeCases(t *testing.T) {
	t.Run("empty index returns no hits", func(t *testing.T) {
		ix := NewFlat()
		hits, err := ix.Search([]float32{1, 2}, 5)
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("Search() = %+v, want empty", hits)
		}
	})

	t.Run("k larger than count", func(t *testing.T) {
		ix := NewFlat()
		if err := ix.Add([][]float32{{1, 0}, {0, 1}}); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		hits, err := ix.Search([]float32{1, 0}, 10)
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if len(hits) != 2 {
			t.Errorf("got %d hits, want 2", len(hits))
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		ix := NewFlat()
		if err := ix.Add([][]float32{{1, 0}}); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		if _, err := ix.Search([]float32{1, 0, 0}, 1); err == nil {
			t.Error("expected dimension mismatch error")
		}
		if err := ix.Add([][]float32{{1, 0, 0}}); err == nil {
			t.Error("expected dimension mismatch error on Add")
		}
	})
}

func TestFlat_WriteReadRoundTrip(t *testing.T) {
	ix := NewFlat()
	if err := ix.Add([][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "flat.index")
	if err := ix.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	restored, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if restored.Type() != TypeFlat {
		t.Errorf("Type() = %q, want %q", restored.Type(), TypeFlat)
	}
	if restored.Count() != 3 || restored.Dimension() != 3 {
		t.Errorf("Count/Dimension = %d/%d, want 3/3", restored.Count(), restored.Dimension())
	}

	orig, _ := ix.Search([]float32{4, 5, 6}, 3)
	got, err := restored.Search([]float32{4, 5, 6}, 3)
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

func TestReadFile_CorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.index")
	if err := os.WriteFile(path, []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected error for corrupt header")
	}
}
