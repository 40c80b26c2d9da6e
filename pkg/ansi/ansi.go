// Package ansi renders {x colour markup.
//
// {r {g {y {b {m {c {w and {k select a foreground colour; the upper-case
// letter selects the bright variant. {n and {x reset. {{ is a literal brace.
// Unknown codes are left as they are.
package ansi

import "strings"

const reset = "\x1b[0m"

var codes = map[byte]string{
	'k': "\x1b[30m", 'r': "\x1b[31m", 'g': "\x1b[32m", 'y': "\x1b[33m",
	'b': "\x1b[34m", 'm': "\x1b[35m", 'c': "\x1b[36m", 'w': "\x1b[37m",
	'K': "\x1b[1;30m", 'R': "\x1b[1;31m", 'G': "\x1b[1;32m", 'Y': "\x1b[1;33m",
	'B': "\x1b[1;34m", 'M': "\x1b[1;35m", 'C': "\x1b[1;36m", 'W': "\x1b[1;37m",
	'n': reset, 'x': reset, 'N': reset, 'X': reset,
}

// Render replaces markup with ANSI escapes. A reset is appended when the
// text changed colour and did not reset itself.
func Render(s string) string {
	return convert(s, true)
}

// Strip removes markup, leaving plain text.
func Strip(s string) string {
	return convert(s, false)
}

func convert(s string, colour bool) string {
	if strings.IndexByte(s, '{') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	dirty := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '{' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		if next == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		seq, ok := codes[next]
		if !ok {
			b.WriteByte(c)
			continue
		}
		i++
		if colour {
			b.WriteString(seq)
			dirty = seq != reset
		}
	}
	if dirty {
		b.WriteString(reset)
	}
	return b.String()
}
