package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateDownDefaultsToOneStep(t *testing.T) {
	flag := migrateDownCmd.Flags().Lookup("steps")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)

	assert.Contains(t, migrateDownCmd.Long, "only the latest migration")
	assert.Contains(t, migrateDownCmd.Long, "--steps 0 reverts every migration")
}
