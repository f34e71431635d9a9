package sampling

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "set.json")

	want := Default(VariantMamba)
	if _, err := Save(want, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path, Default(VariantRWKV))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadMissingFieldFallsBackToCaller(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.json")
	if err := os.WriteFile(path, []byte(`{"temperature":0.5}`), 0o644); err != nil {
		t.Fatal(err)
	}

	fallback := Default(VariantMamba)
	got, err := Load(path, fallback)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Temperature != 0.5 {
		t.Fatalf("Temperature = %v, want 0.5", got.Temperature)
	}
	if got.MinP != fallback.MinP {
		t.Fatalf("MinP = %v, want fallback %v", got.MinP, fallback.MinP)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), Default(VariantRWKV))
	if err == nil {
		t.Fatal("Load of missing file should error")
	}
}
