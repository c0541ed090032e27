package sqlexec

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pulsebatch/errors"
)

// parameterNames returns the named parameters (:name, @name, $name) of a
// statement in order of first appearance. Quoted strings, quoted identifiers
// and comments are skipped.
func parameterNames(statement string) []string {
	var names []string
	seen := map[string]bool{}

	s := statement
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(s, i, c)
		case c == '[':
			i = skipQuoted(s, i, ']')
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := i + 2
			for end+1 < len(s) && !(s[end] == '*' && s[end+1] == '/') {
				end++
			}
			i = end + 1
		case c == ':' || c == '@' || c == '$':
			j := i + 1
			for j < len(s) && isIdentByte(s[j], j == i+1) {
				j++
			}
			if j > i+1 {
				name := s[i+1 : j]
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
				i = j - 1
			}
		}
	}
	return names
}

// skipQuoted returns the index of the quote closing the one opened at start.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, start int, closing byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != closing {
			continue
		}
		if closing != ']' && i+1 < len(s) && s[i+1] == closing {
			i++
			continue
		}
		return i
	}
	return len(s)
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// bindValue converts a record value into something the SQLite driver accepts.
// Lists and maps are bound as JSON text for use with SQLite's json functions.
func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, []byte, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32,
		float32, float64:
		return x, nil
	case uint64:
		if x > 1<<63-1 {
			return nil, errors.Newf("value %d overflows int64", x)
		}
		return int64(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		return f, errors.Wrapf(err, "invalid number %q", x.String())
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot bind %T", v)
		}
		return string(data), nil
	}
}

// namedArgs binds the statement's parameters from params. A parameter
// missing from params is bound as NULL.
func namedArgs(names []string, params map[string]any) ([]any, error) {
	args := make([]any, 0, len(names))
	for _, name := range names {
		v, err := bindValue(params[name])
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", name)
		}
		args = append(args, sql.Named(name, v))
	}
	return args, nil
}
