package imagehost_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/estateauth/imagehost"
)

type recordingUploader struct {
	key         string
	data        []byte
	size        int64
	contentType string
	sha         string
}

func (r *recordingUploader) UploadImage(ctx context.Context, key string, body io.Reader, size int64, contentType, sha256Hex string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.key, r.data, r.size, r.contentType, r.sha = key, data, size, contentType, sha256Hex
	return "https://cdn.example.com/" + key, nil
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-data")

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/huge.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(bytes.Repeat([]byte{0xff}, 2048))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestMirrorPhoto(t *testing.T) {
	server := photoServer(t)
	uploader := &recordingUploader{}
	mirror := imagehost.NewMirror(uploader)
	mirror.HTTPClient = server.Client()

	url, err := mirror.MirrorPhoto(context.Background(), server.URL+"/photo.png", "profiles")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uploader.key, "profiles/"), "key %q", uploader.key)
	assert.True(t, strings.HasSuffix(uploader.key, ".png"), "key %q", uploader.key)
	assert.Equal(t, "https://cdn.example.com/"+uploader.key, url)
	assert.Equal(t, pngBytes, uploader.data)
	assert.Equal(t, int64(len(pngBytes)), uploader.size)
	assert.Equal(t, "image/png", uploader.contentType)

	sum := sha256.Sum256(pngBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), uploader.sha)
}

func TestMirrorPhotoRejects(t *testing.T) {
	server := photoServer(t)

	tests := []struct {
		name    string
		url     string
		timeout time.Duration
	}{
		{name: "not found", url: server.URL + "/missing.png"},
		{name: "not an image", url: server.URL + "/page.html"},
		{name: "too large", url: server.URL + "/huge.jpg"},
		{name: "bad scheme", url: "file:///etc/passwd"},
		{name: "timeout", url: server.URL + "/slow.png", timeout: 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &recordingUploader{}
			mirror := imagehost.NewMirror(uploader)
			mirror.HTTPClient = server.Client()
			mirror.MaxBytes = 1024

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			_, err := mirror.MirrorPhoto(ctx, tt.url, "profiles")
			assert.Error(t, err)
			assert.Empty(t, uploader.key, "nothing should be uploaded")
		})
	}
}

func TestS3ClientURL(t *testing.T) {
	client, err := imagehost.NewS3Client(context.Background(), imagehost.Options{
		Endpoint:       "localhost:8333",
		Bucket:         "catalog",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8333/catalog/profiles/a.png", client.URL("profiles/a.png"))

	client, err = imagehost.NewS3Client(context.Background(), imagehost.Options{
		Bucket:        "catalog",
		AccessKey:     "key",
		SecretKey:     "secret",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/profiles/a.png", client.URL("/profiles/a.png"))

	_, err = imagehost.NewS3Client(context.Background(), imagehost.Options{})
	assert.Error(t, err)
}

func TestS3ClientWithCABundle(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.NotFoundHandler())
	defer tlsServer.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsServer.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, block, 0600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	client, err := imagehost.NewS3Client(context.Background(), imagehost.Options{
		Endpoint:  "localhost:8333",
		Bucket:    "catalog",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8333/catalog/a.png", client.URL("a.png"))
}
