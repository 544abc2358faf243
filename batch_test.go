package audiotag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestParseBatchDedupsIdenticalFiles(t *testing.T) {
	data := buildMinimalFLACBytes(t)
	dir := t.TempDir()
	paths := make([]string, 40)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("copy%02d.flac", i))
		if err := os.WriteFile(paths[i], data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewCache(DefaultOptions())
	results := ParseBatch(context.Background(), c, paths)
	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}

	var canonical *ParsedFile
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("results[%d] (%s): %v", i, r.Path, r.Err)
		}
		if r.Path != paths[i] {
			t.Errorf("results[%d].Path = %s, want input order preserved", i, r.Path)
		}
		if canonical == nil {
			canonical = r.File
		} else if r.File != canonical {
			// Pointer identity across all 40 results is the observable proof
			// that the content fingerprint collapsed them to one parse.
			t.Fatalf("results[%d] got a distinct ParsedFile; dedup did not collapse the batch", i)
		}
	}
	if canonical.Info.SampleRate != 48000 || canonical.Info.DurationSecs != 10.0 {
		t.Errorf("Info = %+v", canonical.Info)
	}
}

func TestParseBatchMixedSuccessAndFailure(t *testing.T) {
	good := writeTempFile(t, "good.flac", buildMinimalFLACBytes(t))
	bad := filepath.Join(t.TempDir(), "missing.flac")

	c := NewCache(DefaultOptions())
	results := ParseBatch(context.Background(), c, []string{good, bad})

	if results[0].Err != nil || results[0].File == nil {
		t.Errorf("good file: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("missing file should carry an error, not fail the batch")
	}
}

func TestParseBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writeTempFile(t, "c.flac", buildMinimalFLACBytes(t))
	c := NewCache(DefaultOptions())
	results := ParseBatch(ctx, c, []string{path, path, path})

	for i, r := range results {
		if r.Err == nil {
			t.Errorf("results[%d]: expected a cancellation error", i)
		}
	}
}

func TestParseBatchEmpty(t *testing.T) {
	c := NewCache(DefaultOptions())
	if got := ParseBatch(context.Background(), c, nil); len(got) != 0 {
		t.Fatalf("got %d results for an empty batch", len(got))
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.flac"), buildMinimalFLACBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.ogg"), buildOggVorbisFile(9, [][2]string{{"TITLE", "B"}}, 44100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "c.flac"), buildMinimalFLACBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(DefaultOptions())
	results, err := ScanDir(context.Background(), c, dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (txt file skipped, subdirectory walked)", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("%s: %v", r.Path, r.Err)
		}
	}
}
