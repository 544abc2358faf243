package audiotag

import "testing"

func TestTagSetOrderAndDuplicates(t *testing.T) {
	ts := newTagSet()
	ts.Add("ARTIST", TagValue{Kind: TagText, Text: "Alice"})
	ts.Add("TITLE", TagValue{Kind: TagText, Text: "Song"})
	ts.Add("ARTIST", TagValue{Kind: TagText, Text: "Bob"})

	if got := ts.Keys(); len(got) != 2 || got[0] != "ARTIST" || got[1] != "TITLE" {
		t.Fatalf("Keys() = %v, want first-seen order [ARTIST TITLE]", got)
	}

	artists := ts.All("ARTIST")
	if len(artists) != 2 || artists[0].Text != "Alice" || artists[1].Text != "Bob" {
		t.Fatalf("All(ARTIST) = %v, want [Alice Bob] in insertion order", artists)
	}

	first, ok := ts.First("ARTIST")
	if !ok || first.Text != "Alice" {
		t.Fatalf("First(ARTIST) = %+v, %v, want Alice, true", first, ok)
	}

	if ts.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ts.Len())
	}
}

func TestTagSetMissingKey(t *testing.T) {
	ts := newTagSet()
	if _, ok := ts.First("MISSING"); ok {
		t.Fatal("First on an absent key should report ok=false")
	}
	if vs := ts.All("MISSING"); vs != nil {
		t.Fatalf("All on an absent key should be nil, got %v", vs)
	}
}

func TestTagSetIdempotentInsertAccumulates(t *testing.T) {
	ts := newTagSet()
	ts.Add("GENRE", TagValue{Kind: TagText, Text: "Rock"})
	ts.Add("GENRE", TagValue{Kind: TagText, Text: "Rock"})

	vs := ts.All("GENRE")
	if len(vs) != 2 {
		t.Fatalf("inserting an already-present key twice should yield 2 values, got %d", len(vs))
	}
}
