package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesSortedFields(t *testing.T) {
	err := InsufficientData("not enough bars").
		WithField("have", 3).
		WithField("want", 10).
		WithField("instrument", "NQ=F")

	msg := err.Error()
	assert.Contains(t, msg, "insufficient_data: not enough bars")
	// Fields render alphabetically so log lines stay stable.
	assert.Contains(t, msg, "have=3 instrument=NQ=F want=10")
}

func TestIsKind_SeesThroughWrapping(t *testing.T) {
	base := InvalidBar("high below low").WithField("high", 1.0)
	wrapped := fmt.Errorf("segmenting block 3: %w", base)

	assert.True(t, IsKind(wrapped, KindInvalidBar))
	assert.False(t, IsKind(wrapped, KindInsufficientData))
	assert.False(t, IsKind(errors.New("plain"), KindInvalidBar))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ComponentScoring("liquidity lookup failed").WithCause(cause)

	require.ErrorIs(t, err, cause)

	var de *Error
	require.ErrorAs(t, fmt.Errorf("cycle 12: %w", err), &de)
	assert.Equal(t, KindComponentScoring, de.Kind)
}
