// Package pdf converts rendered quotation HTML into PDF documents.
package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

// Page formats understood by the converter.
const (
	FormatA3     = "A3"
	FormatA4     = "A4"
	FormatA5     = "A5"
	FormatLetter = "Letter"
	FormatLegal  = "Legal"
)

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

var formats = map[string]string{
	"A3":     FormatA3,
	"A4":     FormatA4,
	"A5":     FormatA5,
	"LETTER": FormatLetter,
	"LEGAL":  FormatLegal,
}

// Margins are in millimetres.
type Margins struct {
	Top    float64 `json:"top" yaml:"top"`
	Right  float64 `json:"right" yaml:"right"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
}

// Options is the closed set of PDF settings.
type Options struct {
	Format              string  `json:"format"`
	Orientation         string  `json:"orientation"`
	Quality             int     `json:"quality"`
	Margins             Margins `json:"margins"`
	DisplayHeaderFooter bool    `json:"displayHeaderFooter"`
	PrintBackground     bool    `json:"printBackground"`
	HeaderText          string  `json:"headerText,omitempty"`
	FooterText          string  `json:"footerText,omitempty"`
	Watermark           string  `json:"watermark,omitempty"`
}

// DefaultFooter is used when header/footer display is on and no footer
// text is set. {page} and {pages} are replaced per page.
const DefaultFooter = "Page {page} of {pages}"

// DefaultOptions returns A4 portrait with 10mm margins.
func DefaultOptions() Options {
	return Options{
		Format:          FormatA4,
		Orientation:     OrientationPortrait,
		Quality:         100,
		Margins:         Margins{Top: 10, Right: 10, Bottom: 10, Left: 10},
		PrintBackground: true,
	}
}

// ParseOptions applies raw request options over the defaults.
func ParseOptions(raw map[string]any) Options {
	return DefaultOptions().Apply(raw)
}

// Apply returns o with every recognised key of raw applied. Unknown keys and
// values of the wrong shape are ignored.
func (o Options) Apply(raw map[string]any) Options {
	for key, v := range raw {
		switch key {
		case "format", "pageSize":
			if s, ok := v.(string); ok {
				if f, ok := formats[strings.ToUpper(strings.TrimSpace(s))]; ok {
					o.Format = f
				}
			}
		case "orientation":
			if s, ok := v.(string); ok {
				if orientation, ok := normalizeOrientation(s); ok {
					o.Orientation = orientation
				}
			}
		case "landscape":
			if b, ok := v.(bool); ok {
				o.Orientation = OrientationPortrait
				if b {
					o.Orientation = OrientationLandscape
				}
			}
		case "quality":
			if n, ok := toFloat(v); ok && n >= 1 && n <= 100 {
				o.Quality = int(n)
			}
		case "margins", "margin":
			o.Margins = applyMargins(o.Margins, v)
		case "displayHeaderFooter":
			if b, ok := v.(bool); ok {
				o.DisplayHeaderFooter = b
			}
		case "printBackground":
			if b, ok := v.(bool); ok {
				o.PrintBackground = b
			}
		case "headerText", "headerTemplate":
			if s, ok := v.(string); ok {
				o.HeaderText = s
			}
		case "footerText", "footerTemplate":
			if s, ok := v.(string); ok {
				o.FooterText = s
			}
		case "watermark":
			if s, ok := v.(string); ok {
				o.Watermark = strings.TrimSpace(s)
			}
		}
	}
	return o
}

// Landscape reports whether pages are laid out landscape.
func (o Options) Landscape() bool {
	return o.Orientation == OrientationLandscape
}

func normalizeOrientation(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait", "p":
		return OrientationPortrait, true
	case "landscape", "l":
		return OrientationLandscape, true
	}
	return "", false
}

func applyMargins(m Margins, v any) Margins {
	switch val := v.(type) {
	case map[string]any:
		for side, raw := range val {
			mm, err := toMillimetres(raw)
			if err != nil || mm < 0 {
				continue
			}
			switch side {
			case "top":
				m.Top = mm
			case "right":
				m.Right = mm
			case "bottom":
				m.Bottom = mm
			case "left":
				m.Left = mm
			}
		}
	default:
		if mm, err := toMillimetres(val); err == nil && mm >= 0 {
			m = Margins{Top: mm, Right: mm, Bottom: mm, Left: mm}
		}
	}
	return m
}

func toMillimetres(v any) (float64, error) {
	if n, ok := toFloat(v); ok {
		return n, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unsupported length %v", v)
	}
	return ParseLength(s)
}

// ParseLength converts a CSS-style length to millimetres. A bare number is
// taken as millimetres; px assumes 96 dpi.
func ParseLength(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	units := []struct {
		suffix string
		factor float64
	}{
		{"mm", 1},
		{"cm", 10},
		{"in", 25.4},
		{"px", 25.4 / 96},
		{"pt", 25.4 / 72},
	}
	factor := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			factor = u.factor
			break
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", s, err)
	}
	return n * factor, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
