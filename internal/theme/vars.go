// Package theme holds the CSS custom properties the overlay card is styled with.
package theme

import (
	"sort"
	"strings"
)

// Custom properties driven by the cover artwork
const (
	VarAvgColor        = "--cover-avg-color"
	VarBrightnessColor = "--cover-avg-brightness-color"
	VarCoverImage      = "--cover-image"
)

// Vars is a set of CSS custom properties, name -> value
type Vars map[string]string

// Set assigns value to name
func (v Vars) Set(name, value string) {
	v[name] = value
}

// Remove deletes name from the set
func (v Vars) Remove(name string) {
	delete(v, name)
}

// Clone returns an independent copy
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// cssURLEscaper keeps a URL inside a double-quoted CSS string. Newlines
// cannot be escaped there, so they are percent-encoded.
var cssURLEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", "%0A",
	"\r", "%0D",
	"\f", "%0C",
)

// CoverImage formats url as the value of --cover-image
func CoverImage(url string) string {
	return `url("` + cssURLEscaper.Replace(url) + `")`
}

// Render writes vars as a :root rule, one declaration per line in name order
func Render(vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(":root {\n")
	for _, name := range names {
		sb.WriteString("  ")
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(vars[name])
		sb.WriteString(";\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}
