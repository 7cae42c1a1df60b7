package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	c, err := Lookup("json")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	data, err := c.Marshal(map[string]int{"a": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, 1, out["a"])

	_, err = Lookup("gob")
	require.Error(t, err)
}
