// Package langfile implements the legacy Minecraft .lang format: one
// key=value pair per line, # comments, blank lines. Lines that are not
// key=value pairs are preserved verbatim on rebuild so the output file is
// structurally identical to the source.
package langfile

import (
	"strings"

	"github.com/mc-localize/mctrans/asset"
)

// Line is one physical line of a lang file.
type Line struct {
	// Key and Value are set for key=value lines.
	Key   string
	Value string
	// Raw holds the original text of pass-through lines (comments, blanks,
	// lines without '=').
	Raw string
	// IsUnit reports whether this line contributes a translation unit.
	IsUnit bool
}

// File is a parsed lang file.
type File struct {
	Lines []Line
}

// Parse splits raw lang data into lines. It never fails: any line that is
// not a key=value pair is carried through untouched.
func Parse(data []byte) *File {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")
	raw := strings.Split(text, "\n")
	// A trailing newline produces one empty trailing element; drop it so
	// rebuild does not grow the file.
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}

	f := &File{Lines: make([]Line, 0, len(raw))}
	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			f.Lines = append(f.Lines, Line{Raw: line})
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			f.Lines = append(f.Lines, Line{Raw: line})
			continue
		}
		f.Lines = append(f.Lines, Line{
			Key:    strings.TrimSpace(k),
			Value:  strings.TrimSpace(v),
			IsUnit: true,
		})
	}
	return f
}

// Extract returns one unit per key=value line, in file order. Entries with
// empty values are skipped.
func (f *File) Extract() []asset.TranslationUnit {
	var units []asset.TranslationUnit
	for _, l := range f.Lines {
		if !l.IsUnit || l.Value == "" {
			continue
		}
		units = append(units, asset.TranslationUnit{ID: l.Key, Source: l.Value})
	}
	return units
}

// Rebuild renders the file with translated values substituted by key.
// Keys absent from the mapping keep their source value. With strict set,
// missing keys produce an IncompleteMappingError instead.
func (f *File) Rebuild(translated map[string]string, strict bool) (string, error) {
	var missing []string
	var b strings.Builder
	for _, l := range f.Lines {
		if !l.IsUnit {
			b.WriteString(l.Raw)
			b.WriteByte('\n')
			continue
		}
		v, ok := translated[l.Key]
		if !ok || v == "" {
			if l.Value != "" {
				missing = append(missing, l.Key)
			}
			v = l.Value
		}
		// Values must stay single-line.
		v = strings.ReplaceAll(v, "\r", "")
		v = strings.ReplaceAll(v, "\n", "\\n")
		b.WriteString(l.Key)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if strict && len(missing) > 0 {
		return "", &asset.IncompleteMappingError{Missing: missing}
	}
	return b.String(), nil
}
