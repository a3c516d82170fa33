// Package langmeta provides display metadata for Minecraft locale codes
// (native names and emoji flags) used in CLI output.
package langmeta

import "strings"

// Meta describes language display metadata.
type Meta struct {
	Name string
	Flag string
}

// Registry contains metadata for the locale codes Minecraft ships lang
// files for. Codes are the game's lowercase snake_case form; Resolve()
// normalizes legacy variants like en_US.
var Registry = map[string]Meta{
	"cs_cz": {Name: "Čeština", Flag: "🇨🇿"},
	"da_dk": {Name: "Dansk", Flag: "🇩🇰"},
	"de_de": {Name: "Deutsch", Flag: "🇩🇪"},
	"en_gb": {Name: "English (UK)", Flag: "🇬🇧"},
	"en_us": {Name: "English (US)", Flag: "🇺🇸"},
	"es_es": {Name: "Español (España)", Flag: "🇪🇸"},
	"es_mx": {Name: "Español (México)", Flag: "🇲🇽"},
	"fi_fi": {Name: "Suomi", Flag: "🇫🇮"},
	"fr_fr": {Name: "Français", Flag: "🇫🇷"},
	"hu_hu": {Name: "Magyar", Flag: "🇭🇺"},
	"it_it": {Name: "Italiano", Flag: "🇮🇹"},
	"ja_jp": {Name: "日本語", Flag: "🇯🇵"},
	"ko_kr": {Name: "한국어", Flag: "🇰🇷"},
	"nl_nl": {Name: "Nederlands", Flag: "🇳🇱"},
	"no_no": {Name: "Norsk", Flag: "🇳🇴"},
	"pl_pl": {Name: "Polski", Flag: "🇵🇱"},
	"pt_br": {Name: "Português (Brasil)", Flag: "🇧🇷"},
	"pt_pt": {Name: "Português (Portugal)", Flag: "🇵🇹"},
	"ru_ru": {Name: "Русский", Flag: "🇷🇺"},
	"sv_se": {Name: "Svenska", Flag: "🇸🇪"},
	"th_th": {Name: "ไทย", Flag: "🇹🇭"},
	"tr_tr": {Name: "Türkçe", Flag: "🇹🇷"},
	"uk_ua": {Name: "Українська", Flag: "🇺🇦"},
	"vi_vn": {Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh_cn": {Name: "简体中文", Flag: "🇨🇳"},
	"zh_tw": {Name: "繁體中文", Flag: "🇹🇼"},
}

// canonicalize lowers a locale code to the game's snake_case form:
// "en_US", "en-us" and " en_us " all become "en_us".
func canonicalize(lang string) string {
	normalized := strings.TrimSpace(lang)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return strings.ToLower(normalized)
}

// Resolve returns best-effort display metadata for a locale code. Unknown
// codes fall back to the code itself with no flag.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	if m, ok := Registry[canonicalize(lang)]; ok {
		return m
	}
	return Meta{Name: lang, Flag: ""}
}

// Label renders a locale for CLI output: flag plus native name plus code,
// e.g. "🇨🇳 简体中文 (zh_cn)".
func Label(lang string) string {
	m := Resolve(lang)
	if m.Flag == "" {
		return lang
	}
	return m.Flag + " " + m.Name + " (" + lang + ")"
}
