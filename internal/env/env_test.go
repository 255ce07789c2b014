package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbacks(t *testing.T) {
	t.Setenv("IA_TEST_EMPTY", "")
	t.Setenv("IA_TEST_BAD_INT", "twelve")

	require.Equal(t, "x", Str("IA_TEST_EMPTY", "x"))
	require.Equal(t, 7, Int("IA_TEST_BAD_INT", 7))
	require.InDelta(t, 0.4, Float("IA_TEST_EMPTY", 0.4), 1e-9)
	require.True(t, Bool("IA_TEST_BAD_INT", true))
	require.Equal(t, []string{"a"}, List("IA_TEST_EMPTY", []string{"a"}))
}

func TestParsedValues(t *testing.T) {
	t.Setenv("IA_TEST_PORT", "9001")
	t.Setenv("IA_TEST_TEMP", "0.25")
	t.Setenv("IA_TEST_ON", "false")
	t.Setenv("IA_TEST_ARGS", " --beam 5, ,--threads 4 ")

	require.Equal(t, 9001, Int("IA_TEST_PORT", 0))
	require.InDelta(t, 0.25, Float("IA_TEST_TEMP", 0), 1e-9)
	require.False(t, Bool("IA_TEST_ON", true))
	require.Equal(t, []string{"--beam 5", "--threads 4"}, List("IA_TEST_ARGS", nil))
}
