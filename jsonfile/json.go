// Package jsonfile implements the modern JSON language map format. Leaf
// string values become translation units addressed by their dotted key
// path; object key order is preserved through rebuild so the output diff
// against the source is limited to translated values.
//
// Mod authors ship surprisingly dirty JSON: byte-order marks, // and #
// comment lines, raw newlines inside string literals. Sanitize repairs
// these before parsing, matching what the game's own lenient loaders
// accept.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/mc-localize/mctrans/asset"
)

// Value is one JSON value with object key order retained.
type Value struct {
	Str  string
	Num  json.Number
	Bool bool
	Kind ValueKind
	Obj  *Object
	Arr  []*Value
}

// ValueKind discriminates the Value union.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindNull
	KindObject
	KindArray
)

// Member is one key/value pair of an object.
type Member struct {
	Key string
	Val *Value
}

// Object is a JSON object whose member order matches the source document.
type Object struct {
	Members []Member
}

// File is a parsed JSON language document.
type File struct {
	Root *Object
}

// Parse sanitizes and parses JSON language data. The root must be an
// object; anything else is a malformed asset.
func Parse(data []byte) (*File, error) {
	dec := json.NewDecoder(strings.NewReader(Sanitize(data)))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindObject {
		return nil, fmt.Errorf("root is not a JSON object")
	}
	// Trailing garbage after the root object is malformed too.
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected content after root object")
	}
	return &File{Root: v.Obj}, nil
}

func parseValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &Object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Members = append(obj.Members, Member{Key: key, Val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return &Value{Kind: KindObject, Obj: obj}, nil
		case '[':
			var arr []*Value
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return &Value{Kind: KindArray, Arr: arr}, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &Value{Kind: KindString, Str: t}, nil
	case json.Number:
		return &Value{Kind: KindNumber, Num: t}, nil
	case bool:
		return &Value{Kind: KindBool, Bool: t}, nil
	case nil:
		return &Value{Kind: KindNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Extract returns one unit per leaf string value, depth-first in document
// order. Nested keys are joined with '.'; empty and whitespace-only values
// are skipped.
func (f *File) Extract() []asset.TranslationUnit {
	var units []asset.TranslationUnit
	walkObject(f.Root, "", func(path, s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		units = append(units, asset.TranslationUnit{ID: path, Source: s})
	})
	return units
}

func walkObject(o *Object, prefix string, fn func(path, s string)) {
	for _, m := range o.Members {
		path := m.Key
		if prefix != "" {
			path = prefix + "." + m.Key
		}
		switch m.Val.Kind {
		case KindString:
			fn(path, m.Val.Str)
		case KindObject:
			walkObject(m.Val.Obj, path, fn)
		}
	}
}

// Rebuild renders the document with translated leaf values substituted by
// key path. Untranslated leaves keep their source text, or fail the strict
// mode with an IncompleteMappingError. Structure, key order and
// non-string values pass through unchanged.
func (f *File) Rebuild(translated map[string]string, strict bool) (string, error) {
	var missing []string
	out := cloneObject(f.Root, "", translated, &missing)
	if strict && len(missing) > 0 {
		return "", &asset.IncompleteMappingError{Missing: missing}
	}

	var b bytes.Buffer
	writeObject(&b, out, 0)
	b.WriteByte('\n')
	return b.String(), nil
}

func cloneObject(o *Object, prefix string, translated map[string]string, missing *[]string) *Object {
	clone := &Object{Members: make([]Member, 0, len(o.Members))}
	for _, m := range o.Members {
		path := m.Key
		if prefix != "" {
			path = prefix + "." + m.Key
		}
		v := m.Val
		switch v.Kind {
		case KindString:
			if strings.TrimSpace(v.Str) != "" {
				if t, ok := translated[path]; ok && t != "" {
					v = &Value{Kind: KindString, Str: t}
				} else {
					*missing = append(*missing, path)
				}
			}
		case KindObject:
			v = &Value{Kind: KindObject, Obj: cloneObject(v.Obj, path, translated, missing)}
		}
		clone.Members = append(clone.Members, Member{Key: m.Key, Val: v})
	}
	return clone
}

const indentStep = "  "

func writeObject(b *bytes.Buffer, o *Object, depth int) {
	if len(o.Members) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{\n")
	for i, m := range o.Members {
		b.WriteString(strings.Repeat(indentStep, depth+1))
		writeString(b, m.Key)
		b.WriteString(": ")
		writeValue(b, m.Val, depth+1)
		if i < len(o.Members)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat(indentStep, depth))
	b.WriteByte('}')
}

func writeValue(b *bytes.Buffer, v *Value, depth int) {
	switch v.Kind {
	case KindString:
		writeString(b, v.Str)
	case KindNumber:
		b.WriteString(v.Num.String())
	case KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNull:
		b.WriteString("null")
	case KindObject:
		writeObject(b, v.Obj, depth)
	case KindArray:
		if len(v.Arr) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, e := range v.Arr {
			b.WriteString(strings.Repeat(indentStep, depth+1))
			writeValue(b, e, depth+1)
			if i < len(v.Arr)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentStep, depth))
		b.WriteByte(']')
	}
}

func writeString(b *bytes.Buffer, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// Sanitize repairs common defects in shipped language files: a UTF-8 BOM,
// // and # comment lines outside strings, raw newlines/tabs and stray
// control characters inside string literals, and a lone backslash before a
// real newline.
func Sanitize(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")

	var out strings.Builder
	out.Grow(len(s))
	inString := false
	escaped := false
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if !inString {
			if c == '/' && i+1 < len(runes) && runes[i+1] == '/' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
				i--
				continue
			}
			if c == '#' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
				i--
				continue
			}
			if c == '"' {
				inString = true
			}
			out.WriteRune(c)
			continue
		}

		// Inside a string literal.
		if escaped {
			escaped = false
			switch c {
			case '\n':
				// A backslash followed by a literal newline means an
				// unterminated \n escape.
				out.WriteByte('n')
			case '\r':
				// drop
			default:
				out.WriteRune(c)
			}
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			out.WriteRune(c)
		case c == '"':
			inString = false
			out.WriteRune(c)
		case c == '\n':
			out.WriteString("\\n")
		case c == '\r':
			// drop
		case c == '\t':
			out.WriteString("\\t")
		case unicode.IsControl(c):
			// drop other control characters outright
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}
