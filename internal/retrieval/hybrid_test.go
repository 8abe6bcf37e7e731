package retrieval

import (
	"testing"

	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/semindex"
)

func rec(id string) crm.Record {
	return crm.Record{ID: id, Properties: map[string]any{"name": "record " + id}}
}

func scored(id string, score float64) semindex.ScoredRecord {
	return semindex.ScoredRecord{Record: rec(id), Score: score}
}

func ids(records []crm.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, got []crm.Record, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotIDs, want)
		}
	}
}

func TestFuse_BothEmpty(t *testing.T) {
	if got := Fuse(nil, nil, 0.7, 10); len(got) != 0 {
		t.Errorf("Fuse(nil, nil) = %v, want empty", got)
	}
}

func TestFuse_SemanticOnlyPreservesOrdering(t *testing.T) {
	semantic := []semindex.ScoredRecord{
		scored("a", 0.9),
		scored("b", 0.7),
		scored("c", 0.5),
	}
	got := Fuse(semantic, nil, 0.6, 10)
	assertIDs(t, got, "a", "b", "c")
}

func TestFuse_DedupSumsContributions(t *testing.T) {
	// With semantic weight 0.5: x contributes 0.5, y contributes
	// 0.4 semantic + 0.5 lexical = 0.9 summed. A max-based fusion
	// would rank x first (0.5 vs 0.5 with x seen earlier); sum-based
	// ranking must put y first.
	semantic := []semindex.ScoredRecord{
		scored("x", 1.0),
		scored("y", 0.8),
	}
	lexical := []crm.Record{rec("y")}

	got := Fuse(semantic, lexical, 0.5, 10)
	assertIDs(t, got, "y", "x")
}

func TestFuse_DuplicateIDAppearsOnce(t *testing.T) {
	semantic := []semindex.ScoredRecord{scored("42", 0.9)}
	lexical := []crm.Record{rec("42"), rec("7")}

	got := Fuse(semantic, lexical, 0.5, 10)
	count := 0
	for _, r := range got {
		if r.ID == "42" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("id 42 appears %d times, want 1", count)
	}
}

func TestFuse_FirstSeenPayloadWins(t *testing.T) {
	semanticRec := crm.Record{ID: "1", Properties: map[string]any{"origin": "semantic"}}
	lexicalRec := crm.Record{ID: "1", Properties: map[string]any{"origin": "lexical"}}

	got := Fuse(
		[]semindex.ScoredRecord{{Record: semanticRec, Score: 0.9}},
		[]crm.Record{lexicalRec},
		0.5, 10,
	)
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Prop("origin") != "semantic" {
		t.Errorf("payload origin = %q, want first-seen semantic payload", got[0].Prop("origin"))
	}
}

func TestFuse_LexicalRankScoring(t *testing.T) {
	// Pure lexical (weight 0): ranking follows list position.
	lexical := []crm.Record{rec("first"), rec("second"), rec("third")}
	got := Fuse(nil, lexical, 0, 10)
	assertIDs(t, got, "first", "second", "third")
}

func TestFuse_LexicalFloor(t *testing.T) {
	// Deep positions floor at 0.1 instead of decaying to zero: with 20
	// lexical hits and weight 0, the tail still outranks nothing but
	// must be present.
	lexical := make([]crm.Record, 20)
	for i := range lexical {
		lexical[i] = rec(string(rune('a' + i)))
	}
	got := Fuse(nil, lexical, 0, 20)
	if len(got) != 20 {
		t.Fatalf("got %d records, want all 20", len(got))
	}
	if got[19].ID != "t" {
		t.Errorf("last record = %q, want t", got[19].ID)
	}
}

func TestFuse_WeightExtremes(t *testing.T) {
	semantic := []semindex.ScoredRecord{scored("s", 0.9)}
	lexical := []crm.Record{rec("l")}

	t.Run("weight 1 zeroes lexical contribution", func(t *testing.T) {
		got := Fuse(semantic, lexical, 1, 10)
		// lexical entry contributes 0 but still dedups/appears
		assertIDs(t, got, "s", "l")
	})

	t.Run("weight 0 zeroes semantic contribution", func(t *testing.T) {
		got := Fuse(semantic, lexical, 0, 10)
		assertIDs(t, got, "l", "s")
	})
}

func TestFuse_MissingIDDropped(t *testing.T) {
	semantic := []semindex.ScoredRecord{
		{Record: crm.Record{Properties: map[string]any{"name": "no id"}}, Score: 0.99},
		scored("kept", 0.5),
	}
	got := Fuse(semantic, nil, 1, 10)
	assertIDs(t, got, "kept")
}

func TestFuse_TopKTruncation(t *testing.T) {
	semantic := []semindex.ScoredRecord{
		scored("a", 0.9),
		scored("b", 0.8),
		scored("c", 0.7),
	}
	got := Fuse(semantic, nil, 1, 2)
	assertIDs(t, got, "a", "b")
}

func TestFuse_StableTies(t *testing.T) {
	semantic := []semindex.ScoredRecord{
		scored("early", 0.5),
		scored("late", 0.5),
	}
	got := Fuse(semantic, nil, 1, 10)
	assertIDs(t, got, "early", "late")
}
