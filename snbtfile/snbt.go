// Package snbtfile implements extraction and rebuild for FTB Quests .snbt
// quest files. Only title, subtitle and description values are translatable;
// everything else (ids, coordinates, item references) passes through
// byte-identical. Units are addressed by tag plus occurrence index, which is
// stable as long as the quest structure does not change.
package snbtfile

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"regexp"

	"github.com/mc-localize/mctrans/asset"
)

var (
	// title: "..." / subtitle: "..."
	reKeyValue = regexp.MustCompile(`(title|subtitle)\s*:\s*"((?:[^"\\]|\\.)*)"`)
	// description: [ ... ]
	reDescBlock = regexp.MustCompile(`(?s)description\s*:\s*\[(.*?)\]`)
	// string literals inside a description block
	reString = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	// §-style (and legacy &-style) formatting code pairs
	reFormatCode = regexp.MustCompile(`[§&][0-9a-fk-orA-FK-OR]`)
)

type unitSpan struct {
	id    string
	start int
	end   int
	text  string
}

// File is a parsed quest document: the raw content plus the spans of its
// translatable values.
type File struct {
	content string
	spans   []unitSpan
}

// Parse scans quest data for translatable values. Scanning is tolerant:
// a file without any eligible value simply yields no units.
func Parse(data []byte) *File {
	content := string(data)
	f := &File{content: content}

	counts := map[string]int{}
	addSpan := func(tag, text string, start, end int) {
		id := tag + "[" + strconv.Itoa(counts[tag]) + "]"
		counts[tag]++
		f.spans = append(f.spans, unitSpan{id: id, start: start, end: end, text: text})
	}

	for _, m := range reKeyValue.FindAllStringSubmatchIndex(content, -1) {
		tag := content[m[2]:m[3]]
		text := content[m[4]:m[5]]
		if !translatable(text) {
			continue
		}
		addSpan(tag, text, m[4], m[5])
	}

	for _, blk := range reDescBlock.FindAllStringSubmatchIndex(content, -1) {
		block := content[blk[2]:blk[3]]
		for _, sm := range reString.FindAllStringSubmatchIndex(block, -1) {
			text := block[sm[2]:sm[3]]
			if !translatable(text) {
				continue
			}
			addSpan("description", text, blk[2]+sm[2], blk[2]+sm[3])
		}
	}

	return f
}

// translatable filters out empty strings and pure symbol/markup values
// like "" or "&a---". Formatting codes are dropped first so their code
// letters ("§a§l") do not count as text.
func translatable(s string) bool {
	s = reFormatCode.ReplaceAllString(s, "")
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Extract returns the eligible quest values in document order.
func (f *File) Extract() []asset.TranslationUnit {
	units := make([]asset.TranslationUnit, 0, len(f.spans))
	spans := append([]unitSpan(nil), f.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for _, s := range spans {
		units = append(units, asset.TranslationUnit{ID: s.id, Source: s.text})
	}
	return units
}

// Rebuild splices translated values back into the document. Replacement
// runs back to front so earlier spans keep their offsets. Units absent
// from the mapping keep their source text.
func (f *File) Rebuild(translated map[string]string) string {
	spans := append([]unitSpan(nil), f.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start > spans[j].start })

	content := f.content
	for _, s := range spans {
		t, ok := translated[s.id]
		if !ok || strings.TrimSpace(t) == "" {
			continue
		}
		content = content[:s.start] + escapeValue(t) + content[s.end:]
	}
	return content
}

// escapeValue makes a translated value safe inside an SNBT quoted string:
// bare quotes are escaped and raw newlines become \n sequences. Already
// escaped sequences from the source are left alone.
func escapeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			b.WriteRune(r)
			escaped = true
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
