package cloudinary

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "cloud"}, zerolog.New(io.Discard))
	require.Error(t, err)
}

func TestNewDefaultsFolder(t *testing.T) {
	svc, err := New(Config{CloudName: "cloud", APIKey: "key", APISecret: "secret"}, zerolog.New(io.Discard))
	require.NoError(t, err)
	require.Equal(t, "submissions", svc.folder)
}

func TestSanitizeAssetIDKeepsIDAndExtension(t *testing.T) {
	require.Equal(t, "ab12cd34.zip", sanitizeAssetID("ab12cd34.zip"))
	require.Equal(t, "my-archive.rar", sanitizeAssetID("my archive.rar"))
	require.Equal(t, "artifact", sanitizeAssetID("///"))
}
