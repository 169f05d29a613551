package langprofile

import "testing"

func TestStaticProfileClassifyIdentifier(t *testing.T) {
	profile := NewStaticProfile(
		"go",
		[]string{"+", "-", "="},
		[]string{"true", "false", "nil"},
		[]string{"int", "string", "bool"},
		"rans",
		map[string]IdentKind{
			"kw.func": IdentKindStructure,
			"op.plus": IdentKindOperator,
		},
	)

	if profile.Name() != "go" {
		t.Fatalf("Name() = %q, want %q", profile.Name(), "go")
	}
	if profile.PreferredDecoder() != "rans" {
		t.Fatalf("PreferredDecoder() = %q, want %q", profile.PreferredDecoder(), "rans")
	}
	if len(profile.Operators()) != 3 || len(profile.Literals()) != 3 || len(profile.TypeNames()) != 3 {
		t.Fatalf("unexpected table lengths: %+v", profile)
	}

	cases := []struct {
		key  string
		want IdentKind
	}{
		{"kw.func", IdentKindStructure},
		{"op.plus", IdentKindOperator},
		{"unseen.key", IdentKindPlain},
	}
	for _, c := range cases {
		if got := profile.ClassifyIdentifier(c.key); got != c.want {
			t.Errorf("ClassifyIdentifier(%q) = %q, want %q", c.key, got, c.want)
		}
	}
}
