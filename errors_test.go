package shade

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	e := newError(KindUnresolvedRequest, "no @provide for request %q", "normal")
	e.Directive = "@request vec3 normal;"
	e.at("lit", "FRAGMENT", 3)
	assert.Equal(t, `[lit:FRAGMENT:3] UnresolvedRequest: no @provide for request "normal" ("@request vec3 normal;")`, e.Error())

	bare := &Error{Kind: KindMissingSource, Err: fs.ErrNotExist}
	assert.Equal(t, "MissingSource: "+fs.ErrNotExist.Error(), bare.Error())
	assert.Equal(t, "Unknown", ErrorKind(0).String())
}

func TestErrorIs(t *testing.T) {
	var err error = fmt.Errorf("wrapped: %w", newError(KindArrayBound, "too many").at("p", "VERTEX", 1))
	assert.True(t, errors.Is(err, ErrArrayBound))
	assert.False(t, errors.Is(err, ErrTypeMismatch))
	assert.False(t, errors.Is(err, newError(KindArrayBound, "other")), "only sentinels match by kind")

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindArrayBound, e.Kind)
}

func TestErrorAtKeepsExistingLocation(t *testing.T) {
	e := newError(KindDirectiveScope, "x").at("", "FRAGMENT@fog.slib", 2)
	e.at("prog", "FRAGMENT", 9)
	assert.Equal(t, "prog", e.Program)
	assert.Equal(t, "FRAGMENT@fog.slib", e.Stage)
	assert.Equal(t, 2, e.Line)

	plain := errors.New("plain")
	assert.Same(t, plain, withProgram(plain, "prog"))
}
