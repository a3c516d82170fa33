// Package asset defines the translation unit model and the classification
// of discoverable modpack assets: jar archives under mods/, flat and JSON
// lang files under assets/, resources/ and kubejs/, and FTB Quests SNBT
// files under config/ftbquests/.
package asset

import (
	"fmt"
	"path"
	"strings"
)

// TranslationUnit is one translatable leaf string plus its stable id.
// The id is the JSON key path, the lang-file key, or the quest node path;
// it must not change between runs so incremental merge can match units.
type TranslationUnit struct {
	// ID is the stable key of the unit within its document.
	ID string
	// Source is the untranslated source text.
	Source string
}

// Kind identifies the on-disk format of a discovered asset.
type Kind string

const (
	KindJar     Kind = "jar"
	KindLang    Kind = "lang"
	KindJSON    Kind = "json"
	KindSNBT    Kind = "snbt"
	KindUnknown Kind = "unknown"
)

// MalformedError reports a structurally invalid source asset. The asset is
// skipped and reported; it never aborts the run.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed asset %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// IncompleteMappingError reports missing translations during a strict
// rebuild. Non-strict rebuilds fall back to the source text instead.
type IncompleteMappingError struct {
	Path    string
	Missing []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("rebuild of %s missing %d translation(s)", e.Path, len(e.Missing))
}

// Classify matches a slash-separated path relative to the input root
// against the recognized asset patterns. Matching is case-sensitive.
func Classify(rel string, sourceLang string) Kind {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	parts := strings.Split(rel, "/")

	if len(parts) == 2 && parts[0] == "mods" && strings.HasSuffix(parts[1], ".jar") {
		return KindJar
	}

	langJSON := sourceLang + ".json"
	langLang := sourceLang + ".lang"

	// assets/<modid>/lang/<source_lang>.{json,lang}
	if len(parts) == 4 && parts[0] == "assets" && parts[2] == "lang" {
		switch parts[3] {
		case langJSON:
			return KindJSON
		case langLang:
			return KindLang
		}
	}

	// resources/<modid>/lang/<source_lang>.json
	if len(parts) == 4 && parts[0] == "resources" && parts[2] == "lang" && parts[3] == langJSON {
		return KindJSON
	}

	// kubejs/assets/<modid>/lang/*.json
	if len(parts) == 5 && parts[0] == "kubejs" && parts[1] == "assets" && parts[3] == "lang" &&
		strings.HasSuffix(parts[4], ".json") {
		return KindJSON
	}

	// config/ftbquests/**/*.snbt
	if len(parts) >= 3 && parts[0] == "config" && parts[1] == "ftbquests" &&
		strings.HasSuffix(parts[len(parts)-1], ".snbt") {
		return KindSNBT
	}

	return KindUnknown
}

// ModID derives the module identifier from an asset path: the directory
// before "lang", falling back to the directory before "data" for packs
// like resources/dsurround/dsurround/data/chat/en_us.lang.
func ModID(rel string) string {
	parts := strings.Split(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "/")
	for i, p := range parts {
		if p == "lang" && i > 0 {
			return parts[i-1]
		}
	}
	for i, p := range parts {
		if p == "data" && i > 0 {
			return parts[i-1]
		}
	}
	return "unknown_mod"
}

// TargetName derives the output file name by substituting the target
// language code for the source one. Legacy en_US-cased lang names are
// handled by a case fallback; names that do not mention the source
// language get the target code prefixed instead.
func TargetName(original, sourceLang, targetLang string) string {
	lowerName := strings.ToLower(original)
	lowerSource := strings.ToLower(sourceLang)

	if strings.Contains(lowerName, lowerSource) {
		out := strings.ReplaceAll(original, sourceLang, targetLang)
		out = strings.ReplaceAll(out, lowerSource, strings.ToLower(targetLang))
		// Legacy 1.12-era lang files use en_US casing.
		upperVariant := caseVariant(sourceLang)
		if upperVariant != sourceLang && strings.Contains(out, upperVariant) {
			out = strings.ReplaceAll(out, upperVariant, caseVariant(targetLang))
		}
		return out
	}
	return strings.ToLower(targetLang) + "_" + original
}

// caseVariant converts "en_us" to "en_US" (and back-compatible codes alike).
func caseVariant(lang string) string {
	i := strings.IndexByte(lang, '_')
	if i < 0 || i+1 >= len(lang) {
		return lang
	}
	return lang[:i+1] + strings.ToUpper(lang[i+1:])
}
