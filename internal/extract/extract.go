// Package extract applies declared patterns to raw source output and yields
// named capture records.
package extract

import (
	"errors"
	"fmt"
	"regexp"
)

// Match modes. Single expects exactly one record; multi accepts zero or more
// (a device such as a hot-pluggable interface may legitimately be absent).
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// ErrNoMatch is returned in single mode when the pattern does not match.
var ErrNoMatch = errors.New("pattern did not match input")

// Record maps capture-group names to the matched text of one record.
type Record map[string]string

// Pattern is a compiled extraction pattern. Compile once at registry load;
// Extract is safe for concurrent use.
type Pattern struct {
	re     *regexp.Regexp
	multi  bool
	groups []string
}

// Compile parses the regular expression and validates the match mode.
// Patterns with no named capture groups are a configuration error.
func Compile(expr, mode string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}

	var groups []string
	for _, name := range re.SubexpNames() {
		if name != "" {
			groups = append(groups, name)
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("pattern %q has no named capture groups", expr)
	}

	switch mode {
	case "", ModeSingle:
		return &Pattern{re: re, groups: groups}, nil
	case ModeMulti:
		return &Pattern{re: re, multi: true, groups: groups}, nil
	default:
		return nil, fmt.Errorf("unknown match mode %q (want %q or %q)", mode, ModeSingle, ModeMulti)
	}
}

// Groups returns the pattern's named capture groups in declaration order.
func (p *Pattern) Groups() []string {
	out := make([]string, len(p.groups))
	copy(out, p.groups)
	return out
}

// Multi reports whether the pattern matches multiple records.
func (p *Pattern) Multi() bool {
	return p.multi
}

// Extract matches the pattern against the whole input. In single mode the
// first match is returned and no match is ErrNoMatch. In multi mode all
// matches are returned and zero matches is a valid empty result.
func (p *Pattern) Extract(raw []byte) ([]Record, error) {
	if p.multi {
		matches := p.re.FindAllSubmatch(raw, -1)
		records := make([]Record, 0, len(matches))
		for _, m := range matches {
			records = append(records, p.record(m))
		}
		return records, nil
	}

	m := p.re.FindSubmatch(raw)
	if m == nil {
		return nil, ErrNoMatch
	}
	return []Record{p.record(m)}, nil
}

func (p *Pattern) record(match [][]byte) Record {
	rec := make(Record, len(p.groups))
	for i, name := range p.re.SubexpNames() {
		if name == "" || i >= len(match) {
			continue
		}
		rec[name] = string(match[i])
	}
	return rec
}
