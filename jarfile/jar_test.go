package jarfile

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mc-localize/mctrans/asset"
)

func writeJar(t *testing.T, entries map[string]string) string {
	t.Helper()
	jarPath := filepath.Join(t.TempDir(), "mod.jar")
	out, err := os.Create(jarPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return jarPath
}

func TestScan(t *testing.T) {
	jarPath := writeJar(t, map[string]string{
		"assets/create/lang/en_us.json":   `{"item.cart": "Cart"}`,
		"assets/create/lang/ru_ru.json":   `{"item.cart": "Телега"}`,
		"assets/flywheel/lang/en_us.json": `{"gui.title": "Flywheel"}`,
		"assets/create/textures/a.png":    "binary",
		"META-INF/MANIFEST.MF":            "Manifest-Version: 1.0",
	})

	docs, err := Scan(jarPath, "en_us")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}

	byMod := map[string]*Document{}
	for _, d := range docs {
		byMod[d.ModID] = d
	}
	create, ok := byMod["create"]
	if !ok {
		t.Fatalf("create doc missing: %+v", byMod)
	}
	units := create.File.Extract()
	if len(units) != 1 || units[0].ID != "item.cart" || units[0].Source != "Cart" {
		t.Errorf("create units = %+v", units)
	}
	if create.InternalPath != "assets/create/lang/en_us.json" {
		t.Errorf("internal path = %q", create.InternalPath)
	}
}

func TestScanNoLangFiles(t *testing.T) {
	jarPath := writeJar(t, map[string]string{"META-INF/MANIFEST.MF": "x"})
	docs, err := Scan(jarPath, "en_us")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %+v, want none", docs)
	}
}

func TestScanMalformed(t *testing.T) {
	notAJar := filepath.Join(t.TempDir(), "broken.jar")
	if err := os.WriteFile(notAJar, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Scan(notAJar, "en_us")
	var me *asset.MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MalformedError", err)
	}

	badJSON := writeJar(t, map[string]string{
		"assets/create/lang/en_us.json": `[1,2]`,
	})
	if _, err := Scan(badJSON, "en_us"); !errors.As(err, &me) {
		t.Fatalf("err = %v, want MalformedError", err)
	}
}
