package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.starlark.net/syntax"
)

// ErrMalformedBlocks is returned when an encoded block sequence cannot be
// decoded.
var ErrMalformedBlocks = errors.New("malformed content block sequence")

// ParseBlocks decodes a serialized block sequence. Both JSON and the
// single-quoted literal form printed by some SDKs are accepted, e.g.
//
//	[{'type': 'text', 'text': 'hello', 'extras': {'signature': None}}]
//
// Every element must be an object. Blocks whose text is present but not a
// string make the whole sequence invalid.
func ParseBlocks(s string) ([]Block, error) {
	s = strings.TrimSpace(s)

	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		v, perr := parseLiteral(s)
		if perr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlocks, perr)
		}
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: top-level value is not a list", ErrMalformedBlocks)
		}
		items = list
	}

	blocks := make([]Block, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedBlocks, i)
		}
		var b Block
		if t, ok := obj["type"].(string); ok {
			b.Type = t
		}
		if raw, present := obj["text"]; present && raw != nil {
			text, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d has non-string text", ErrMalformedBlocks, i)
			}
			b.Text = text
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// parseLiteral reads a literal with the Starlark expression parser and
// converts the syntax tree to plain values. Nothing is evaluated: calls,
// names other than the constants, and operators other than string
// concatenation and numeric sign are rejected.
func parseLiteral(s string) (any, error) {
	expr, err := (&syntax.FileOptions{}).ParseExpr("blocks", reprCompat(s), 0)
	if err != nil {
		return nil, err
	}
	return literalValue(expr)
}

func literalValue(e syntax.Expr) (any, error) {
	switch x := e.(type) {
	case *syntax.Literal:
		switch v := x.Value.(type) {
		case string:
			return v, nil
		case int64:
			return float64(v), nil
		case *big.Int:
			f, _ := new(big.Float).SetInt(v).Float64()
			return f, nil
		case float64:
			return v, nil
		}
		return nil, fmt.Errorf("unsupported literal %s", x.Raw)

	case *syntax.Ident:
		switch x.Name {
		case "None", "null":
			return nil, nil
		case "True", "true":
			return true, nil
		case "False", "false":
			return false, nil
		}
		return nil, fmt.Errorf("unexpected name %q", x.Name)

	case *syntax.ParenExpr:
		return literalValue(x.X)

	case *syntax.ListExpr:
		return literalList(x.List)

	case *syntax.TupleExpr:
		return literalList(x.List)

	case *syntax.DictExpr:
		out := make(map[string]any, len(x.List))
		for _, item := range x.List {
			entry, ok := item.(*syntax.DictEntry)
			if !ok {
				return nil, fmt.Errorf("unexpected %T in dict", item)
			}
			k, err := literalValue(entry.Key)
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("dict key %v is not a string", k)
			}
			v, err := literalValue(entry.Value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil

	case *syntax.UnaryExpr:
		if x.X == nil || (x.Op != syntax.MINUS && x.Op != syntax.PLUS) {
			return nil, fmt.Errorf("unsupported operator %s", x.Op)
		}
		v, err := literalValue(x.X)
		if err != nil {
			return nil, err
		}
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("operator %s applied to non-number", x.Op)
		}
		if x.Op == syntax.MINUS {
			n = -n
		}
		return n, nil

	case *syntax.BinaryExpr:
		// Only produced by reprCompat for adjacent string literals.
		if x.Op != syntax.PLUS {
			return nil, fmt.Errorf("unsupported operator %s", x.Op)
		}
		l, err := literalValue(x.X)
		if err != nil {
			return nil, err
		}
		r, err := literalValue(x.Y)
		if err != nil {
			return nil, err
		}
		ls, lok := l.(string)
		rs, rok := r.(string)
		if !lok || !rok {
			return nil, errors.New("only strings can be concatenated")
		}
		return ls + rs, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func literalList(exprs []syntax.Expr) ([]any, error) {
	out := make([]any, 0, len(exprs))
	for _, e := range exprs {
		v, err := literalValue(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Characters Starlark accepts after a backslash.
const starlarkEscapes = "abfnrtv\\'\"01234567xuU\n"

// reprCompat rewrites what Python literal output may contain but Starlark
// string literals reject: \x and octal escapes above 0x7f, UTF-16
// surrogate pairs, backslashes before characters that are not escapes,
// and adjacent string literals, which become an explicit concatenation.
func reprCompat(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	afterString := false
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			if afterString {
				b.WriteString("+ ")
			}
			i = copyString(&b, src, i, 0)
			afterString = true
		case isStringPrefix(src, i):
			if afterString {
				b.WriteString("+ ")
			}
			b.WriteByte(c)
			i = copyString(&b, src, i+1, c|0x20)
			afterString = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
			afterString = false
		}
	}
	return b.String()
}

// isStringPrefix reports a one-letter r or b prefix opening a string at i.
func isStringPrefix(src string, i int) bool {
	switch src[i] {
	case 'r', 'R', 'b', 'B':
	default:
		return false
	}
	if i+1 >= len(src) || (src[i+1] != '\'' && src[i+1] != '"') {
		return false
	}
	if i > 0 {
		p := src[i-1]
		if p == '_' || (p >= '0' && p <= '9') || (p >= 'a' && p <= 'z') || (p >= 'A' && p <= 'Z') {
			return false
		}
	}
	return true
}

// copyString copies the string literal opening at i and returns the index
// after its closing quote, or len(src) when it is unterminated. prefix is
// the lower-cased literal prefix, 'r' or 'b', or 0.
func copyString(b *strings.Builder, src string, i int, prefix byte) int {
	delim := src[i : i+1]
	if strings.HasPrefix(src[i:], strings.Repeat(delim, 3)) {
		delim = src[i : i+3]
	}
	b.WriteString(delim)
	i += len(delim)

	for i < len(src) {
		if strings.HasPrefix(src[i:], delim) {
			b.WriteString(delim)
			return i + len(delim)
		}
		c := src[i]
		switch {
		case c != '\\' || i+1 >= len(src):
			b.WriteByte(c)
			i++
		case prefix == 'r':
			b.WriteString(src[i : i+2])
			i += 2
		default:
			i = copyEscape(b, src, i, prefix == 'b')
		}
	}
	return i
}

// copyEscape handles the escape starting with the backslash at i. Bytes
// literals may hold escapes above 0x7f as they are.
func copyEscape(b *strings.Builder, src string, i int, bytes bool) int {
	e := src[i+1]
	switch {
	case bytes && (e == 'u' || e == 'U'):
		b.WriteString(`\\`)
		return i + 1
	case bytes && strings.ContainsRune(starlarkEscapes, rune(e)):
	case e == 'x':
		if n, ok := hexAt(src, i+2, 2); ok && n > 0x7f {
			fmt.Fprintf(b, `\u%04x`, n)
			return i + 4
		}
	case e == 'u':
		hi, ok := hexAt(src, i+2, 4)
		if !ok || !utf16.IsSurrogate(rune(hi)) {
			break
		}
		if strings.HasPrefix(src[i+6:], `\u`) {
			if lo, ok := hexAt(src, i+8, 4); ok {
				if r := utf16.DecodeRune(rune(hi), rune(lo)); r != utf8.RuneError {
					fmt.Fprintf(b, `\U%08x`, r)
					return i + 12
				}
			}
		}
		b.WriteString(`\ufffd`)
		return i + 6
	case e >= '0' && e <= '7':
		j, n := i+1, 0
		for k := 0; k < 3 && j < len(src) && src[j] >= '0' && src[j] <= '7'; k++ {
			n = n*8 + int(src[j]-'0')
			j++
		}
		if n > 0x7f {
			fmt.Fprintf(b, `\u%04x`, n)
			return j
		}
	case !strings.ContainsRune(starlarkEscapes, rune(e)):
		// Python keeps an unknown escape as a literal backslash.
		b.WriteString(`\\`)
		return i + 1
	}
	b.WriteString(src[i : i+2])
	return i + 2
}

func hexAt(src string, i, n int) (uint64, bool) {
	if i+n > len(src) {
		return 0, false
	}
	v, err := strconv.ParseUint(src[i:i+n], 16, 32)
	return v, err == nil
}
