package imagehost

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxPhotoBytes caps the size of a mirrored photo
const DefaultMaxPhotoBytes = 5 << 20

// Uploader stores an image and returns its public URL. *S3Client implements it.
type Uploader interface {
	UploadImage(ctx context.Context, key string, body io.Reader, size int64, contentType, sha256Hex string) (string, error)
}

// Mirror copies remote images (such as identity provider profile photos) into
// our own bucket. It implements estateauth.PhotoMirror.
type Mirror struct {
	Uploader   Uploader
	HTTPClient *http.Client
	MaxBytes   int64
}

func NewMirror(uploader Uploader) *Mirror {
	return &Mirror{Uploader: uploader, HTTPClient: http.DefaultClient, MaxBytes: DefaultMaxPhotoBytes}
}

// MirrorPhoto downloads sourceURL and uploads it under folder/. The caller's
// context bounds both the download and the upload.
func (m *Mirror) MirrorPhoto(ctx context.Context, sourceURL, folder string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid photo url %q", sourceURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download photo: status %d", resp.StatusCode)
	}
	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("photo has content type %q", contentType)
	}

	limit := m.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxPhotoBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(data)) > limit {
		return "", errors.New("photo exceeds size limit")
	}

	sum := sha256.Sum256(data)
	key := path.Join(folder, uuid.NewString()+extensionFor(contentType))
	return m.Uploader.UploadImage(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, hex.EncodeToString(sum[:]))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
