package errs

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type Error interface {
	error
	Wrap() error
	WrapMsg(msg string, kv ...any) error
}

// New builds a plain error carrying optional key/value context.
func New(s string, kv ...any) Error {
	return &errorString{s: toString(s, kv)}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

func (e *errorString) Wrap() error {
	return pkgerrors.WithStack(e)
}

func (e *errorString) WrapMsg(msg string, kv ...any) error {
	if len(kv) == 0 {
		if msg == "" {
			return pkgerrors.WithStack(e)
		}
		return pkgerrors.Wrap(e, msg)
	}
	return pkgerrors.Wrap(e, toString(msg, kv))
}

func toString(s string, kv []any) string {
	if len(kv) == 0 {
		return s
	}
	var buf strings.Builder
	buf.WriteString(s)
	for i := 0; i < len(kv); i += 2 {
		if buf.Len() > 0 {
			buf.WriteString(", ")
		}
		key := fmt.Sprint(kv[i])
		buf.WriteString(key)
		buf.WriteString("=")
		if i+1 < len(kv) {
			buf.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			buf.WriteString("MISSING")
		}
	}
	return buf.String()
}
