package dictionary

import "testing"

func TestEmbeddedLoaderLoad(t *testing.T) {
	var loader EmbeddedLoader
	dict, err := loader.Load(EmbeddedVersion)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dict.Version() != EmbeddedVersion {
		t.Fatalf("Version() = %q, want %q", dict.Version(), EmbeddedVersion)
	}
	if dict.Size() != len(defaultMorphemes) {
		t.Fatalf("Size() = %d, want %d", dict.Size(), len(defaultMorphemes))
	}

	idx, ok := dict.IndexOf("if")
	if !ok || idx != 0 {
		t.Fatalf("IndexOf(if) = (%d, %v), want (0, true)", idx, ok)
	}
	morpheme, ok := dict.MorphemeAt(idx)
	if !ok || morpheme != "if" {
		t.Fatalf("MorphemeAt(0) = (%q, %v), want (if, true)", morpheme, ok)
	}

	if _, ok := dict.IndexOf("nonexistent-morpheme"); ok {
		t.Fatalf("expected IndexOf to report false for an absent morpheme")
	}
}

func TestEmbeddedLoaderRejectsUnknownVersion(t *testing.T) {
	var loader EmbeddedLoader
	if _, err := loader.Load("9.9.9"); err == nil {
		t.Fatalf("expected an error loading an unknown dictionary version")
	}
}

func TestUnknownIndexIsLastEntry(t *testing.T) {
	if got, want := UnknownIndex(), uint32(len(defaultMorphemes)-1); got != want {
		t.Fatalf("UnknownIndex() = %d, want %d", got, want)
	}
}
