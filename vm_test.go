package v7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execOK(t *testing.T, src string) Val {
	t.Helper()
	e := NewEngine(DefaultConfig())
	v, result, err := e.Exec([]byte(src), "<test>")
	require.NoError(t, err)
	require.Equal(t, ResultOK, result)
	return v
}

func TestExecScenarios(t *testing.T) {
	t.Run("arithmetic and completion value", func(t *testing.T) {
		v := execOK(t, "1 + 2 * 3;")
		assert.Equal(t, float64(7), v.Float())
	})

	t.Run("closures capture outer variables by reference", func(t *testing.T) {
		v := execOK(t, `
			function counter() {
				var n = 0;
				return function() { n = n + 1; return n; };
			}
			var c = counter();
			c();
			c();
			c();
		`)
		assert.Equal(t, float64(3), v.Float())
	})

	t.Run("prototype chain property lookup", func(t *testing.T) {
		v := execOK(t, `
			function Base() {}
			Base.prototype.greet = function() { return 1; };
			function Derived() {}
			Derived.prototype = Base.prototype;
			var d = new Derived();
			d.greet();
		`)
		assert.Equal(t, float64(1), v.Float())
	})

	t.Run("try/finally runs exactly once", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		v, result, err := e.Exec([]byte(`
			var log = "";
			function f() {
				try {
					log = log + "a";
					return 1;
				} finally {
					log = log + "b";
				}
			}
			f();
			log;
		`), "<test>")
		require.NoError(t, err)
		require.Equal(t, ResultOK, result)
		s, err := v.String(e)
		require.NoError(t, err)
		assert.Equal(t, "ab", s)
	})

	t.Run("thrown exception propagates as an ExecException", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		_, result, err := e.Exec([]byte(`throw "boom";`), "<test>")
		assert.Equal(t, ResultExecException, result)
		require.Error(t, err)
		_, ok := err.(ExecException)
		assert.True(t, ok)
	})

	t.Run("catch recovers and script continues", func(t *testing.T) {
		v := execOK(t, `
			var result;
			try {
				throw "oops";
			} catch (e) {
				result = e;
			}
			result;
		`)
		assert.True(t, v.IsString())
	})

	t.Run("syntax error is reported as ResultSyntaxError", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		_, result, err := e.Exec([]byte("var ;"), "<test>")
		assert.Equal(t, ResultSyntaxError, result)
		require.Error(t, err)
	})
}

func TestGarbageCollection(t *testing.T) {
	t.Run("live objects survive a collection, unreachable ones are reclaimed", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		_, result, err := e.Exec([]byte(`
			var kept = { a: 1 };
			(function() { var temp = { b: 2 }; })();
		`), "<test>")
		require.NoError(t, err)
		require.Equal(t, ResultOK, result)

		before := e.MemStats()
		e.GC()
		after := e.MemStats()

		assert.LessOrEqual(t, after.ObjectCells-after.ObjectFree, before.ObjectCells-before.ObjectFree)
	})

	t.Run("Dump renders a go-spew census of the live heap", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		_, result, err := e.Exec([]byte(`var kept = { a: 1 };`), "<test>")
		require.NoError(t, err)
		require.Equal(t, ResultOK, result)

		dump := e.Dump()
		assert.Contains(t, dump, "Stats:")
		assert.Contains(t, dump, "Objects:")
	})
}
