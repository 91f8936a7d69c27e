package v7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	cases := []string{
		`{"a":1,"b":[1,2,3],"c":"hi","d":true,"e":null}`,
		`[1,2,3]`,
		`"just a string"`,
		`42`,
	}

	for _, src := range cases {
		src := src
		t.Run(src, func(t *testing.T) {
			e := NewEngine(DefaultConfig())
			v, err := e.ParseJSON(src)
			require.NoError(t, err)

			out, err := e.JSONStringify(v)
			require.NoError(t, err)

			v2, err := e.ParseJSON(out)
			require.NoError(t, err)

			out2, err := e.JSONStringify(v2)
			require.NoError(t, err)

			assert.Equal(t, out, out2)
		})
	}
}

func TestNumberToString(t *testing.T) {
	t.Run("integral values print without a decimal point", func(t *testing.T) {
		assert.Equal(t, "42", NumberToString(42))
		assert.Equal(t, "0", NumberToString(0))
	})

	t.Run("fractional values keep their digits", func(t *testing.T) {
		assert.Equal(t, "3.14", NumberToString(3.14))
	})
}
