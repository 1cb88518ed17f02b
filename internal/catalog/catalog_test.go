package catalog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
)

const sample = `
# proto port name
6 80 web
6 443 web
17 53 dns
`

func TestParseAndLookup(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	name, ok := c.Lookup(6, 443)
	require.True(t, ok)
	assert.Equal(t, "web", name)

	_, ok = c.Lookup(17, 9999)
	assert.False(t, ok)
}

func TestNormalizeClobbersUnknownToZero(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	proto, port := c.Normalize(17, 9999)
	assert.EqualValues(t, 0, proto)
	assert.EqualValues(t, 0, port)

	proto, port = c.Normalize(6, 80)
	assert.EqualValues(t, 6, proto)
	assert.EqualValues(t, 80, port)
}

func TestNameFallsBackToOther(t *testing.T) {
	c := catalog.Empty()
	assert.Equal(t, "other", c.Name(6, 80))
}
