package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	assert.Equal(t, Version, a.Version)
	assert.Equal(t, "spectrometerd@"+Version, a.Release())
	assert.NotEmpty(t, a.GoVersion)

	_, err := uuid.Parse(a.InstanceID)
	require.NoError(t, err)
	assert.NotEqual(t, a.InstanceID, b.InstanceID)
}
