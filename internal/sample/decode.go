package sample

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodeError reports a sample that is not UTF-8 hex text
type DecodeError struct {
	Index int
	Raw   []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sample %d (% x): %v", e.Index, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrNotUTF8 is wrapped by DecodeError when a sample is not valid UTF-8
var ErrNotUTF8 = errors.New("not valid UTF-8")

// Decode interprets s as UTF-8 text holding a base-16 integer.
// Surrounding whitespace, a sign and an optional 0x prefix are accepted, as
// are single underscores between digits ("1_f"). An underscore may follow
// the prefix but may not lead bare digits.
func Decode(s Sample) (int64, error) {
	if !utf8.Valid(s) {
		return 0, ErrNotUTF8
	}
	text := strings.TrimSpace(string(s))

	sign := ""
	if text != "" && (text[0] == '-' || text[0] == '+') {
		sign, text = text[:1], text[1:]
	}
	digits, prefixed := strings.CutPrefix(text, "0x")
	if !prefixed {
		digits, prefixed = strings.CutPrefix(text, "0X")
	}
	if !prefixed && strings.HasPrefix(digits, "_") {
		return 0, &strconv.NumError{Func: "ParseInt", Num: string(s), Err: strconv.ErrSyntax}
	}

	// base 0 enforces the underscore placement rules once the prefix is explicit
	return strconv.ParseInt(sign+"0x"+digits, 0, 64)
}

// DecodeAll decodes every sample in order. The first failure aborts with a
// *DecodeError naming the offending index.
func DecodeAll(samples []Sample) ([]int64, error) {
	values := make([]int64, len(samples))
	for i, s := range samples {
		v, err := Decode(s)
		if err != nil {
			return nil, &DecodeError{Index: i, Raw: append([]byte(nil), s...), Err: err}
		}
		values[i] = v
	}
	return values, nil
}
