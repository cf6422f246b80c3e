package report

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the parts of a text report
type ColorScheme struct {
	Title   *color.Color
	Label   *color.Color
	Value   *color.Color
	Pass    *color.Color
	Fail    *color.Color
	Warn    *color.Color
	Dim     *color.Color
	Verdict *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:   color.New(color.FgCyan, color.Bold),
		Label:   color.New(color.FgWhite),
		Value:   color.New(color.FgCyan),
		Pass:    color.New(color.FgGreen, color.Bold),
		Fail:    color.New(color.FgRed, color.Bold),
		Warn:    color.New(color.FgYellow),
		Dim:     color.New(color.Faint),
		Verdict: color.New(color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()

	scheme.Title.DisableColor()
	scheme.Label.DisableColor()
	scheme.Value.DisableColor()
	scheme.Pass.DisableColor()
	scheme.Fail.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Dim.DisableColor()
	scheme.Verdict.DisableColor()

	return scheme
}

// passIcon returns a checkmark symbol in the pass color
func (s *ColorScheme) passIcon() string {
	return s.Pass.Sprint("✓")
}

// failIcon returns an X symbol in the fail color
func (s *ColorScheme) failIcon() string {
	return s.Fail.Sprint("✗")
}

func (s *ColorScheme) icon(passed bool) string {
	if passed {
		return s.passIcon()
	}
	return s.failIcon()
}
