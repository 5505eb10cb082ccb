package blob_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labcore/internal/blob"
	"labcore/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := blob.Open(ctx, config.Blob{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverMemory, mem.Driver())

	root := filepath.Join(t.TempDir(), "docs")
	fs, err := blob.Open(ctx, config.Blob{Driver: "fs", FSRoot: root})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, fs.Driver())

	_, err = fs.Put(ctx, "a/b.json", strings.NewReader("{}"), blob.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	_, err = fs.Put(ctx, "a/b.json", strings.NewReader("{}"), blob.PutOptions{})
	require.ErrorIs(t, err, blob.ErrExists)

	_, err = blob.Open(ctx, config.Blob{Driver: "tape"})
	assert.ErrorContains(t, err, "unknown blob driver")
}
