package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDialects(t *testing.T) {
	for _, name := range []string{"standardsql", "postgres", "duckdb"} {
		d := Get(name)
		require.NotNil(t, d, name)
		assert.Equal(t, name, d.Name())
		assert.NotEmpty(t, d.DivFunction())
		assert.NotEmpty(t, d.RegexpMatchFunction())
	}
	assert.Nil(t, Get("no_such_dialect"))
}

func TestRegisterReplaces(t *testing.T) {
	d := Get("postgres")
	Register(d)
	assert.Equal(t, d, Get("postgres"))
}

func TestSafeCastSupport(t *testing.T) {
	assert.True(t, Get("standardsql").SupportsSafeCast())
	assert.False(t, Get("postgres").SupportsSafeCast())
}
