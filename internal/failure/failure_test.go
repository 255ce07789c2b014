package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorfKeepsKindAndCause(t *testing.T) {
	err := Errorf(ErrConnection, "dial %s: %w", "ws://localhost:9000", io.EOF)

	require.ErrorIs(t, err, ErrConnection)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "connection error: dial ws://localhost:9000: EOF", err.Error())
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "configuration", err: Errorf(ErrConfiguration, "missing binary"), want: "configuration"},
		{name: "parse wrapped twice", err: fmt.Errorf("refine: %w", Errorf(ErrParse, "no suggestions")), want: "parse"},
		{name: "process exit", err: ErrProcessExit, want: "process_exit"},
		{name: "unknown", err: errors.New("boom"), want: "other"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Label(tc.err))
		})
	}
}
