// Package jarfile locates language resources inside mod .jar archives.
// A jar contributes one document per internal assets/<modid>/lang/ language
// file; the archive itself is never modified — translated resources are
// written as a parallel resource-pack structure by the pipeline.
package jarfile

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mc-localize/mctrans/asset"
	"github.com/mc-localize/mctrans/jsonfile"
)

// Document is one language resource found inside a jar.
type Document struct {
	// InternalPath is the path of the resource inside the archive.
	InternalPath string
	// ModID is the module identifier from the assets/<modid>/ segment,
	// used for prompt context and for the mirrored output path.
	ModID string
	// File is the parsed JSON language map.
	File *jsonfile.File
}

// Scan opens a jar and parses every source-language JSON resource under an
// assets/*/lang/ directory. A jar without language files yields an empty
// slice; an unreadable archive is a malformed asset.
func Scan(jarPath, sourceLang string) ([]*Document, error) {
	r, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, &asset.MalformedError{Path: jarPath, Err: err}
	}
	defer r.Close()

	suffix := "/lang/" + sourceLang + ".json"
	var docs []*Document
	for _, zf := range r.File {
		name := path.Clean(zf.Name)
		if !strings.Contains(name, "assets/") || !strings.HasSuffix(name, suffix) {
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			return nil, &asset.MalformedError{Path: jarPath + "!" + name, Err: err}
		}
		jf, err := jsonfile.Parse(data)
		if err != nil {
			return nil, &asset.MalformedError{Path: jarPath + "!" + name, Err: err}
		}

		docs = append(docs, &Document{
			InternalPath: name,
			ModID:        modIDFromInternal(name),
			File:         jf,
		})
	}
	return docs, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// modIDFromInternal pulls the module id out of an internal archive path
// like assets/create/lang/en_us.json.
func modIDFromInternal(internal string) string {
	parts := strings.Split(internal, "/")
	for i, p := range parts {
		if p == "assets" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return "unknown_mod"
}
