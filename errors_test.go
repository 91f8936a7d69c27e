package v7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("throw new TypeError is catchable and instanceof both TypeError and Error", func(t *testing.T) {
		v := execOK(t, `
			var caught;
			try {
				throw new TypeError("bad arg");
			} catch (e) {
				caught = e;
			}
			(caught instanceof TypeError) && (caught instanceof Error) && caught.message == "bad arg";
		`)
		assert.True(t, v.Bool())
	})

	t.Run("Error subtypes are not instanceof each other", func(t *testing.T) {
		v := execOK(t, `
			var e = new RangeError("oops");
			(e instanceof RangeError) && !(e instanceof TypeError);
		`)
		assert.True(t, v.Bool())
	})

	t.Run("calling without new still builds a named Error object", func(t *testing.T) {
		v := execOK(t, `
			var e = EvalError("nope");
			e.name == "EvalError" && e.message == "nope";
		`)
		assert.True(t, v.Bool())
	})

	t.Run("every taxonomy member is a global constructor reachable from script", func(t *testing.T) {
		v := execOK(t, `
			(typeof Error == "function") &&
			(typeof TypeError == "function") &&
			(typeof SyntaxError == "function") &&
			(typeof ReferenceError == "function") &&
			(typeof InternalError == "function") &&
			(typeof RangeError == "function") &&
			(typeof EvalError == "function");
		`)
		assert.True(t, v.Bool())
	})

	t.Run("NewError-created engine errors carry the right prototype", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		v := e.NewError(ErrKindReferenceError, "x is not defined")
		ok, err := e.instanceOf(v, e.errorCtors[ErrKindReferenceError])
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.instanceOf(v, e.errorCtors[ErrKindError])
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("referencing an undeclared identifier throws a real ReferenceError", func(t *testing.T) {
		v := execOK(t, `
			var caught;
			try {
				missingName;
			} catch (e) {
				caught = e;
			}
			caught instanceof ReferenceError;
		`)
		assert.True(t, v.Bool())
	})
}
