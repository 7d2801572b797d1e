package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	data, contentType, err := decodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
	require.Equal(t, "image/png", contentType)
}

func TestDecodeDataURLRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"not a data url", "https://example.com/a.png"},
		{"missing comma", "data:image/png;base64"},
		{"unsupported encoding", "data:image/png,rawbytes"},
		{"invalid base64", "data:image/png;base64,!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeDataURL(tc.in)
			require.Error(t, err)
		})
	}
}

func TestNewUploaderValidatesConfig(t *testing.T) {
	_, err := NewUploader(Config{})
	require.ErrorContains(t, err, "bucket")

	_, err = NewUploader(Config{Bucket: "b"})
	require.ErrorContains(t, err, "region")

	_, err = NewUploader(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s"})
	require.ErrorContains(t, err, "public base url")

	uploader, err := NewUploader(Config{
		Bucket:        "b",
		Region:        "r",
		AccessKey:     "a",
		SecretKey:     "s",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	require.Equal(t, "thumbnails", uploader.cfg.Prefix)
}

func TestObjectKeyIsDatePartitioned(t *testing.T) {
	uploader := &Uploader{cfg: Config{Prefix: "/thumbnails/"}}
	key := uploader.objectKey("thumbnail-abc.png")
	require.Regexp(t, `^thumbnails/\d{4}/\d{2}/\d{2}/thumbnail-abc\.png$`, key)
}
