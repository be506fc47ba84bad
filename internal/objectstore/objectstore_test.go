package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "archives/demo-repo.zip", ArchiveKey("demo-repo"))
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Endpoint: "localhost:9000"}.Enabled())
	assert.True(t, Config{Endpoint: "localhost:9000", Bucket: "repos"}.Enabled())
}

func TestNewDoesNotDial(t *testing.T) {
	c, err := New(Config{Endpoint: "localhost:9000", Bucket: "repos", AccessKey: "a", SecretKey: "b"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "repos", c.bucket)
}
