package v7

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValNaNBoxing(t *testing.T) {
	t.Run("numbers round-trip including ordinary NaN/Infinity", func(t *testing.T) {
		for _, f := range []float64{0, 1, -1, 3.14, 1e300, math.Inf(1), math.Inf(-1)} {
			v := NumberVal(f)
			assert.True(t, v.IsNumber())
			assert.Equal(t, f, v.Float())
		}
		nan := NumberVal(math.NaN())
		assert.True(t, nan.IsNumber())
		assert.True(t, math.IsNaN(nan.Float()))
	})

	t.Run("booleans and undefined are distinct tags", func(t *testing.T) {
		assert.True(t, BoolVal(true).IsBoolean())
		assert.True(t, BoolVal(true).Bool())
		assert.False(t, BoolVal(false).Bool())
		assert.True(t, Undefined.IsUndefined())
		assert.False(t, Undefined.IsNumber())
	})

	t.Run("object and function pointers keep their index", func(t *testing.T) {
		v := ObjectVal(42)
		assert.True(t, v.IsObjectPtr())
		assert.Equal(t, uint32(42), v.ObjectIndex())

		f := FunctionVal(7)
		assert.True(t, f.IsFunctionPtr())
		assert.Equal(t, uint32(7), f.FunctionIndex())
	})

	t.Run("short strings inline, long strings own heap space", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		short := e.StringVal("ab")
		long := e.StringVal("this is definitely more than a few inline bytes")

		s, err := short.String(e)
		require.NoError(t, err)
		assert.Equal(t, "ab", s)

		s, err = long.String(e)
		require.NoError(t, err)
		assert.Equal(t, "this is definitely more than a few inline bytes", s)
	})

	t.Run("stale owned-string reference is reported, not silently read", func(t *testing.T) {
		sh := newStringHeap(0.9)
		v := sh.intern([]byte("hello world, long enough to not inline"))
		offset, serial := v.ownedOffsetSerial()

		_, err := sh.read(offset, serial)
		require.NoError(t, err)

		_, err = sh.read(offset, serial+1)
		require.Error(t, err)
	})
}
