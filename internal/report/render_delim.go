package report

import (
	"bufio"
	"io"
	"strings"
)

// DelimOptions configures the delimited ("csv") rendering mode: a
// configurable separator, quote, and escape character, per spec.md §6's
// client CLI surface ("delimiter/quote/escape overrides"). encoding/csv's
// Writer only exposes a Comma rune with no independent escape character,
// so RenderDelim implements its own minimal quoting pass instead of
// wrapping csv.Writer — see DESIGN.md.
type DelimOptions struct {
	Sep    rune
	Quote  rune
	Escape rune
}

// DefaultDelimOptions matches the common CSV convention: comma-separated,
// double-quoted, backslash-escaped.
func DefaultDelimOptions() DelimOptions {
	return DelimOptions{Sep: ',', Quote: '"', Escape: '\\'}
}

// RenderDelim writes recs in delimited form to w under opts.
func RenderDelim(w io.Writer, cols []string, rows []Row, opts DelimOptions) error {
	bw := bufio.NewWriter(w)

	writeLine := func(fields []string) error {
		for i, f := range fields {
			if i > 0 {
				if _, err := bw.WriteRune(opts.Sep); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(quoteField(f, opts)); err != nil {
				return err
			}
		}
		return bw.WriteByte('\n')
	}

	if err := writeLine(cols); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(row.Values); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func quoteField(f string, opts DelimOptions) string {
	needsQuote := strings.ContainsRune(f, opts.Sep) ||
		strings.ContainsRune(f, opts.Quote) ||
		strings.ContainsRune(f, '\n')
	if !needsQuote {
		return f
	}

	var b strings.Builder
	b.WriteRune(opts.Quote)
	for _, r := range f {
		if r == opts.Quote || r == opts.Escape {
			b.WriteRune(opts.Escape)
		}
		b.WriteRune(r)
	}
	b.WriteRune(opts.Quote)
	return b.String()
}
