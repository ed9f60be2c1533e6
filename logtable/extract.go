package logtable

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultSourceVersion is recorded when no firmware version is given.
const DefaultSourceVersion = "0.0.0"

// Extractor finds log macro call sites in firmware sources.
//
// A call site is a configured macro name, optional whitespace, an opening
// parenthesis, and a double-quoted string literal as the first argument.
// The literal may span lines and contain escaped quotes.
type Extractor struct {
	re      *regexp.Regexp
	version string
}

// Collision is a hash shared by two different templates. The first template
// keeps the key.
type Collision struct {
	Hash     uint64
	Previous string
	New      string
	File     string
}

// NewExtractor compiles the call-site pattern for macros.
func NewExtractor(macros []string, sourceVersion string) (*Extractor, error) {
	if len(macros) == 0 {
		return nil, errors.New("no macros provided")
	}
	quoted := make([]string, len(macros))
	for i, m := range macros {
		quoted[i] = regexp.QuoteMeta(m)
	}
	re, err := regexp.Compile(`(?s)(` + strings.Join(quoted, "|") + `)\s*\(\s*("(?:[^"\\]|\\.)*")`)
	if err != nil {
		return nil, fmt.Errorf("invalid macro pattern: %w", err)
	}
	if sourceVersion == "" {
		sourceVersion = DefaultSourceVersion
	}
	return &Extractor{re: re, version: sourceVersion}, nil
}

// Scan returns the templates of every call site in src, in order.
func (e *Extractor) Scan(src string) []string {
	matches := e.re.FindAllStringSubmatch(src, -1)
	messages := make([]string, 0, len(matches))
	for _, m := range matches {
		messages = append(messages, unquote(m[2]))
	}
	return messages
}

// unquote strips the quotes from a C string literal and processes its
// escapes the way a C compiler does, so the template holds the bytes the
// firmware hashes at compile time. Unknown escapes keep the escaped
// character, as GCC does.
func unquote(literal string) string {
	body := literal[1 : len(literal)-1]
	if strings.IndexByte(body, '\\') < 0 {
		return body
	}

	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			out = append(out, c)
			continue
		}
		i++
		switch c = body[i]; c {
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'e', 'E':
			out = append(out, 0x1b)
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			n := 0
			j := i
			for ; j < len(body) && j < i+3 && isOctal(body[j]); j++ {
				n = n<<3 | int(body[j]-'0')
			}
			out = append(out, byte(n))
			i = j - 1
		case 'x':
			n, j := 0, i+1
			for ; j < len(body) && isHex(body[j]); j++ {
				n = n<<4 | hexValue(body[j])
			}
			if j == i+1 {
				out = append(out, 'x')
				continue
			}
			out = append(out, byte(n))
			i = j - 1
		case 'u', 'U':
			width := 4
			if c == 'U' {
				width = 8
			}
			if i+width >= len(body) {
				out = append(out, c)
				continue
			}
			r, err := strconv.ParseUint(body[i+1:i+1+width], 16, 32)
			if err != nil {
				out = append(out, c)
				continue
			}
			out = utf8.AppendRune(out, rune(r))
			i += width
		default:
			// \\ \' \" \? and unknown escapes.
			out = append(out, c)
		}
	}
	return string(out)
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexValue(c byte) int {
	switch {
	case c >= 'a':
		return int(c-'a') + 10
	case c >= 'A':
		return int(c-'A') + 10
	}
	return int(c - '0')
}

// Merge adds messages to t. A message already present under its hash only
// has its latest_version updated; a different message under the same hash
// is a collision and leaves the existing entry untouched.
func (e *Extractor) Merge(t *Table, messages []string, file string) []Collision {
	var collisions []Collision
	for _, msg := range messages {
		hash := FNV1a64(msg)
		if existing, ok := t.entries[hash]; ok {
			if existing.Msg == msg {
				existing.LatestVersion = e.version
				t.entries[hash] = existing
				continue
			}
			collisions = append(collisions, Collision{
				Hash:     hash,
				Previous: existing.Msg,
				New:      msg,
				File:     file,
			})
			continue
		}
		t.entries[hash] = Entry{Msg: msg, LatestVersion: e.version}
	}
	return collisions
}

// BuildOptions configures Build.
type BuildOptions struct {
	// Output is the artifact path to write (required).
	Output string
	// Latest is a previous artifact to extend, for backwards compatibility
	// with older firmware. Optional.
	Latest string
	// Macros are the log macro names to scan for.
	Macros []string
	// SourceFiles are the firmware sources to scan.
	SourceFiles []string
	// SourceVersion is recorded as latest_version. Defaults to "0.0.0".
	SourceVersion string
	// Stdout receives progress messages. Defaults to os.Stdout.
	Stdout io.Writer
}

// BuildResult summarizes a Build.
type BuildResult struct {
	// Written is the number of entries in the output artifact.
	Written    int
	Collisions []Collision
	// Missing lists source files that did not exist.
	Missing []string
	// Skipped is true when nothing was done for lack of macros or sources.
	Skipped bool
}

// Build scans the sources, merges them into the latest artifact, and writes
// the result. Collisions and missing sources are reported, not fatal.
func Build(opts BuildOptions) (*BuildResult, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	if len(opts.Macros) == 0 {
		_, _ = fmt.Fprintln(out, "No macros provided.")
		return &BuildResult{Skipped: true}, nil
	}
	if len(opts.SourceFiles) == 0 {
		_, _ = fmt.Fprintln(out, "No source files provided.")
		return &BuildResult{Skipped: true}, nil
	}
	if opts.Output == "" {
		return nil, errors.New("output path is required")
	}

	extractor, err := NewExtractor(opts.Macros, opts.SourceVersion)
	if err != nil {
		return nil, err
	}

	table := NewTable()
	if opts.Latest != "" {
		data, err := os.ReadFile(opts.Latest)
		if err != nil {
			return nil, fmt.Errorf("failed to read latest log table: %w", err)
		}
		latest, err := Parse(data)
		if err != nil {
			return nil, err
		}
		table = latest.clone()
	}

	result := &BuildResult{}
	for _, path := range opts.SourceFiles {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			_, _ = fmt.Fprintf(out, "File not found: %s\n", path)
			result.Missing = append(result.Missing, path)
			continue
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		collisions := extractor.Merge(table, extractor.Scan(string(src)), path)
		for _, c := range collisions {
			_, _ = fmt.Fprintln(out, "COLLISION DETECTED!")
			_, _ = fmt.Fprintf(out, "Previous: %s\n", c.Previous)
			_, _ = fmt.Fprintf(out, "New: %s\n", c.New)
		}
		result.Collisions = append(result.Collisions, collisions...)
	}

	data, err := table.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode log table: %w", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write log table: %w", err)
	}

	result.Written = table.Len()
	_, _ = fmt.Fprintf(out, "Wrote %d log calls to %s\n", result.Written, opts.Output)
	return result, nil
}
