package discovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRRoundTrip(t *testing.T) {
	const payload = "https://upload.example.com/config?session=abc123"
	path := filepath.Join(t.TempDir(), "code.png")

	require.NoError(t, WriteQRFile(path, payload, 256))

	got, err := DecodeQRFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeQRFile_Errors(t *testing.T) {
	_, err := DecodeQRFile(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening image")
}

func TestEncodeQR_EmptyText(t *testing.T) {
	_, err := EncodeQR("", 128)
	assert.Error(t, err)
}
