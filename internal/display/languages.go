// Package display holds static presentation data for languages: human
// readable names and the per-language color table used by the caption view.
package display

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Info is what the frontend needs to render one language column.
type Info struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
	Color      string `json:"color"`
}

// colors assigns each well-known language a stable accent color; codes not
// listed fall back to defaultColor.
var colors = map[string]string{
	"en": "#4F8EF7",
	"zh": "#E74C3C",
	"es": "#F39C12",
	"fr": "#9B59B6",
	"de": "#16A085",
	"ja": "#E91E8C",
	"ko": "#2ECC71",
	"pt": "#D35400",
	"ru": "#34495E",
	"it": "#27AE60",
	"vi": "#C0392B",
}

const defaultColor = "#7F8C8D"

// Lookup resolves one ISO 639-1 code. Unknown codes still produce a usable
// entry with the code itself as the name.
func Lookup(code string) Info {
	info := Info{Code: code, Name: code, NativeName: code, Color: Color(code)}

	tag, err := language.Parse(code)
	if err != nil {
		return info
	}
	if name := display.English.Languages().Name(tag); name != "" {
		info.Name = name
	}
	if name := display.Self.Name(tag); name != "" {
		info.NativeName = name
	}
	return info
}

// Languages resolves a list of codes in order.
func Languages(codes []string) []Info {
	out := make([]Info, 0, len(codes))
	for _, code := range codes {
		out = append(out, Lookup(code))
	}
	return out
}

// Color returns the accent color for a language code.
func Color(code string) string {
	if c, ok := colors[code]; ok {
		return c
	}
	return defaultColor
}
