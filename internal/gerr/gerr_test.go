package gerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/gerr"
)

func TestToExitCode_nilIsZero(t *testing.T) {
	assert.Equal(t, 0, gerr.ToExitCode(nil))
}

func TestToExitCode_mapsKind(t *testing.T) {
	err := gerr.New(gerr.KindIO, "platformio.go", 42, "msr read failed: %s", "/dev/cpu/0/msr")
	assert.Equal(t, gerr.KindIO.String(), "io")
	assert.NotZero(t, gerr.ToExitCode(err))
}

func TestWrap_unwraps(t *testing.T) {
	cause := errors.New("ioctl failed")
	err := gerr.Wrap(gerr.KindIO, "platformio.go", 10, cause, "batch read")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, gerr.KindIO, gerr.KindOf(err))
}

func TestError_IsComparesKindOnly(t *testing.T) {
	a := gerr.New(gerr.KindInvalidArgument, "x.go", 1, "bad")
	b := gerr.New(gerr.KindInvalidArgument, "y.go", 2, "also bad")
	assert.True(t, errors.Is(a, b))

	c := gerr.New(gerr.KindRuntime, "x.go", 1, "different kind")
	assert.False(t, errors.Is(a, c))
}
