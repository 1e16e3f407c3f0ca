package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// Fetch downloads an image by URL. The filename is taken from the last path
// segment, defaulting to image.jpg.
func Fetch(ctx context.Context, client *http.Client, imageURL string) (Upload, error) {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Upload{}, fmt.Errorf("invalid image URL %q", imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to build request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Upload{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	// One byte past the limit so Process can report the upload as too large.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("failed to read image data: %w", err)
	}

	return Upload{Filename: filenameFromURL(u), Data: data}, nil
}

// URLFilename returns the name an image URL is listed under.
func URLFilename(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "image.jpg"
	}
	return filenameFromURL(u)
}

func filenameFromURL(u *url.URL) string {
	filename := path.Base(u.Path)
	if filename == "" || filename == "/" || filename == "." {
		return "image.jpg"
	}
	return filename
}
