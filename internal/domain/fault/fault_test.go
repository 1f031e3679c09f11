package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransient(t *testing.T) {
	cause := errors.New("connection reset")

	err := Transient(cause)
	require.True(t, IsTransient(err))
	require.ErrorIs(t, err, cause)

	require.Same(t, err, Transient(err))
	require.NoError(t, Transient(nil))
	require.False(t, IsTransient(cause))
}
