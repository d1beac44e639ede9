// Package chatcolor builds the terminal ANSI color escapes used to dress up
// notices sent to clients. It implements chatproto.Colorizer using
// github.com/fatih/color, kept out of the core protocol package so that
// package never needs to import a terminal-color library directly.
package chatcolor

import "github.com/fatih/color"

// Colorizer wraps warning and notice text in ANSI SGR escapes. It satisfies
// internal/chatproto.Colorizer without that package importing fatih/color.
type Colorizer struct {
	warn   *color.Color
	notice *color.Color
}

// New returns a Colorizer using red for warnings and cyan for notices.
func New() *Colorizer {
	return &Colorizer{
		warn:   color.New(color.FgRed),
		notice: color.New(color.FgCyan),
	}
}

func (c *Colorizer) Warn(s string) string   { return c.warn.Sprint(s) }
func (c *Colorizer) Notice(s string) string { return c.notice.Sprint(s) }
