package logtable

import (
	"fmt"
	"strings"
)

// Render substitutes values into a firmware printf template.
//
// Templates are C format strings. Length modifiers (h, hh, l, ll, z, j, t,
// L) are dropped, %u and %i become %d, and each value is converted to the
// class its verb expects: an integer verb truncates a float, a float verb
// widens an integer, %s prints any value. A template rendered with no values
// is returned verbatim, so a literal "%" in an argument-free message is
// preserved. Missing or extra values are reported inline by fmt.
func Render(template string, values []any) string {
	if len(values) == 0 {
		return template
	}

	var format strings.Builder
	args := make([]any, 0, len(values))
	next := 0

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' {
			format.WriteByte(c)
			continue
		}
		if i+1 < len(template) && template[i+1] == '%' {
			format.WriteString("%%")
			i++
			continue
		}

		start := i + 1
		spec, verb, end := scanDirective(template, start)
		if verb == 0 {
			// Unterminated directive; emit it untouched.
			format.WriteString(strings.ReplaceAll(template[i:], "%", "%%"))
			break
		}
		i = end

		goVerb, class := translateVerb(verb)
		if class == classUnknown {
			format.WriteString("%%")
			format.WriteString(strings.ReplaceAll(template[start:end+1], "%", "%%"))
			continue
		}
		format.WriteByte('%')
		format.WriteString(spec)
		format.WriteByte(goVerb)

		if next < len(values) {
			args = append(args, coerce(values[next], class))
			next++
		}
	}
	args = append(args, values[next:]...)

	return fmt.Sprintf(format.String(), args...)
}

type verbClass int

const (
	classUnknown verbClass = iota
	classInt
	classFloat
	classAny
)

// scanDirective reads flags, width, precision and length modifiers starting
// at template[start]. It returns the Go-compatible spec (modifiers removed),
// the conversion character, and the index of that character.
func scanDirective(template string, start int) (spec string, verb byte, end int) {
	var b strings.Builder
	i := start
	for i < len(template) && strings.IndexByte("-+ #0", template[i]) >= 0 {
		b.WriteByte(template[i])
		i++
	}
	for i < len(template) && (isDigit(template[i]) || template[i] == '.') {
		b.WriteByte(template[i])
		i++
	}
	for i < len(template) && strings.IndexByte("hlzjtL", template[i]) >= 0 {
		i++
	}
	if i >= len(template) {
		return "", 0, len(template)
	}
	return b.String(), template[i], i
}

func translateVerb(verb byte) (byte, verbClass) {
	switch verb {
	case 'd', 'i', 'u':
		return 'd', classInt
	case 'x', 'X', 'o', 'c':
		return verb, classInt
	case 'f', 'F', 'e', 'E', 'g', 'G':
		return verb, classFloat
	case 's':
		return 'v', classAny
	case 'p':
		return 'x', classInt
	default:
		return 0, classUnknown
	}
}

func coerce(v any, class verbClass) any {
	switch class {
	case classInt:
		switch n := v.(type) {
		case float32:
			return int64(n)
		case float64:
			return int64(n)
		}
	case classFloat:
		switch n := v.(type) {
		case uint32:
			return float64(n)
		case int32:
			return float64(n)
		}
	}
	return v
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
