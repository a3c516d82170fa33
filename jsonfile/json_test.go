package jsonfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/mc-localize/mctrans/asset"
)

func TestExtractNestedKeyPaths(t *testing.T) {
	f, err := Parse([]byte(`{
		"item.cart": "Cart",
		"gui": {
			"title": "Cart Menu",
			"buttons": { "close": "Close" }
		},
		"pack_format": 15,
		"credits": ["a", "b"]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	units := f.Extract()
	want := []asset.TranslationUnit{
		{ID: "item.cart", Source: "Cart"},
		{ID: "gui.title", Source: "Cart Menu"},
		{ID: "gui.buttons.close", Source: "Close"},
	}
	if len(units) != len(want) {
		t.Fatalf("units = %+v", units)
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("unit %d = %+v, want %+v", i, units[i], want[i])
		}
	}
}

func TestRebuildPreservesOrderAndStructure(t *testing.T) {
	src := `{
  "zebra": "Zebra",
  "apple": "Apple",
  "meta": {
    "version": 3,
    "name": "Pack"
  }
}
`
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Identity rebuild with full mapping must reproduce the document.
	out, err := f.Rebuild(map[string]string{
		"zebra":     "Zebra",
		"apple":     "Apple",
		"meta.name": "Pack",
	}, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if out != src {
		t.Errorf("rebuild = %q, want %q", out, src)
	}

	// Translated rebuild changes only leaf values.
	out, err = f.Rebuild(map[string]string{
		"zebra":     "斑马",
		"apple":     "苹果",
		"meta.name": "汉化包",
	}, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !strings.Contains(out, `"zebra": "斑马"`) || !strings.Contains(out, `"version": 3`) {
		t.Errorf("rebuild = %q", out)
	}
	if strings.Index(out, "zebra") > strings.Index(out, "apple") {
		t.Error("key order not preserved")
	}
}

func TestRebuildFallbackAndStrict(t *testing.T) {
	f, err := Parse([]byte(`{"a": "Apple", "b": "Banana"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out, err := f.Rebuild(map[string]string{"a": "苹果"}, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !strings.Contains(out, `"b": "Banana"`) {
		t.Errorf("missing id should fall back to source: %q", out)
	}

	_, err = f.Rebuild(map[string]string{"a": "苹果"}, true)
	var ime *asset.IncompleteMappingError
	if !errors.As(err, &ime) {
		t.Fatalf("err = %v, want IncompleteMappingError", err)
	}
	if len(ime.Missing) != 1 || ime.Missing[0] != "b" {
		t.Errorf("missing = %v", ime.Missing)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{`[1,2,3]`, `{"a":`, `"just a string"`, `{} trailing`} {
		if _, err := Parse([]byte(bad)); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips BOM",
			in:   "\uFEFF{\"a\": \"b\"}",
			want: `{"a": "b"}`,
		},
		{
			name: "strips line comments",
			in:   "{\n// comment\n\"a\": \"b\"\n}",
			want: "{\n\n\"a\": \"b\"\n}",
		},
		{
			name: "strips hash comments",
			in:   "{\n# note\n\"a\": \"b\"\n}",
			want: "{\n\n\"a\": \"b\"\n}",
		},
		{
			name: "escapes raw newline in string",
			in:   "{\"a\": \"line1\nline2\"}",
			want: `{"a": "line1\nline2"}`,
		},
		{
			name: "keeps slashes inside strings",
			in:   `{"a": "http://example.com"}`,
			want: `{"a": "http://example.com"}`,
		},
		{
			name: "backslash before real newline",
			in:   "{\"a\": \"end\\\nnext\"}",
			want: `{"a": "end\nnext"}`,
		},
	}

	for _, tc := range tests {
		if got := Sanitize([]byte(tc.in)); got != tc.want {
			t.Errorf("%s: Sanitize = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseDirtyDocument(t *testing.T) {
	dirty := "\uFEFF{\n// header comment\n\"a\": \"line1\nline2\",\n\"b\": \"ok\"\n}"
	f, err := Parse([]byte(dirty))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	units := f.Extract()
	if len(units) != 2 {
		t.Fatalf("units = %+v", units)
	}
	if units[0].Source != "line1\nline2" {
		t.Errorf("unit 0 = %+v", units[0])
	}
}
