package render

import (
	htmlTemplate "html/template"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/template"
)

var (
	propertyPattern = regexp.MustCompile(`^-?[a-z][a-z0-9-]*$`)
	lengthPattern   = regexp.MustCompile(`^\d+(\.\d+)?(%|px|mm|cm|in|pt|em|rem)?$`)
)

const maxStyleValue = 200

// inlineStyle renders an element style as a declaration list. Properties are
// sorted; camelCase names are converted to CSS names; unsafe values are
// dropped.
func inlineStyle(style template.Style) htmlTemplate.CSS {
	if len(style) == 0 {
		return ""
	}

	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	decls := make(map[string]string, len(style))
	for _, k := range keys {
		prop := cssProperty(k)
		if !propertyPattern.MatchString(prop) {
			continue
		}
		value := strings.TrimSpace(style[k])
		if !safeCSSValue(value) {
			continue
		}
		if _, dup := decls[prop]; !dup {
			decls[prop] = value
		}
	}

	props := make([]string, 0, len(decls))
	for p := range decls {
		props = append(props, p)
	}
	sort.Strings(props)

	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = p + ": " + decls[p]
	}
	return htmlTemplate.CSS(strings.Join(parts, "; "))
}

// cssProperty converts fontSize or font_size to font-size.
func cssProperty(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_':
			b.WriteByte('-')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func safeCSSValue(v string) bool {
	if v == "" || len(v) > maxStyleValue {
		return false
	}
	if strings.ContainsAny(v, ";{}<>\"'\\`\n\r") {
		return false
	}
	lower := strings.ToLower(v)
	for _, bad := range []string{"url(", "expression(", "javascript:", "@import", "/*", "*/"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return true
}

// widthStyle turns a column width into a col style. auto and anything that
// is not a plain length yield no style.
func widthStyle(w string) htmlTemplate.CSS {
	if w == merge.AutoWidth || !lengthPattern.MatchString(w) {
		return ""
	}
	return htmlTemplate.CSS("width: " + w)
}
