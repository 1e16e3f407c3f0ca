package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/intake"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

// maxMemory is how much of a multipart body is buffered in memory before
// spilling to temporary files.
const maxMemory = 32 << 20

var errNoFiles = errors.New("no files uploaded")

// HandleAnalyze processes the upload form and renders the results page.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uploads, err := h.readUploads(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch := h.analyzer.AnalyzeBatch(r.Context(), uploads)
	h.saveBatch(batch)
	h.renderResults(w, batch)
}

// HandleUpload accepts either a multipart upload or a JSON body with image
// URLs and answers with the processed batch as JSON.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		uploads []intake.Upload
		err     error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		uploads, err = h.readURLUploads(r)
	} else {
		uploads, err = h.readUploads(r)
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch := h.analyzer.AnalyzeBatch(r.Context(), uploads)
	h.saveBatch(batch)

	resolved, failed := batch.Counts()
	response := map[string]any{
		"batch_id": batch.ID,
		"message":  fmt.Sprintf("Processed %d image(s)", len(batch.Images)),
		"images":   len(batch.Images),
		"resolved": resolved,
		"failed":   failed,
		"batch":    batch,
	}
	h.writeJSON(w, response)
}

// readUploads collects every file sent under "files" (or "file") in the
// order the browser submitted them. A file that cannot be read is passed on
// with its error so intake rejects it alone.
func (h *Handler) readUploads(r *http.Request) ([]intake.Upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		return nil, errNoFiles
	}
	if len(headers) > h.maxFiles {
		return nil, fmt.Errorf("too many files: %d (max %d)", len(headers), h.maxFiles)
	}

	uploads := make([]intake.Upload, 0, len(headers))
	for _, fh := range headers {
		upload := intake.Upload{Filename: fh.Filename}
		upload.Data, upload.Err = readPart(fh)
		if upload.Err != nil {
			upload.Err = fmt.Errorf("failed to read file contents: %w", upload.Err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// One byte past the limit so intake can report the file as too large.
	return io.ReadAll(io.LimitReader(file, intake.MaxFileSize+1))
}

func (h *Handler) readURLUploads(r *http.Request) ([]intake.Upload, error) {
	var request struct {
		ImageURL  string   `json:"image_url"`
		ImageURLs []string `json:"image_urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	urls := request.ImageURLs
	if request.ImageURL != "" {
		urls = append([]string{request.ImageURL}, urls...)
	}
	if len(urls) == 0 {
		return nil, errors.New("image_url or image_urls is required")
	}
	if len(urls) > h.maxFiles {
		return nil, fmt.Errorf("too many images: %d (max %d)", len(urls), h.maxFiles)
	}

	uploads := make([]intake.Upload, 0, len(urls))
	for _, u := range urls {
		upload, err := intake.Fetch(r.Context(), h.httpClient, u)
		if err != nil {
			slog.Warn("Unable to fetch image URL", "url", u, "err", err)
			upload = intake.Upload{Filename: intake.URLFilename(u), Err: err}
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

// batchSummary is the list view of a stored batch.
type batchSummary struct {
	ID        string `json:"id"`
	Profile   string `json:"profile,omitempty"`
	CreatedAt string `json:"created_at"`
	Images    int    `json:"images"`
	Resolved  int    `json:"resolved"`
	Failed    int    `json:"failed"`
}

func summarize(b *models.Batch) batchSummary {
	resolved, failed := b.Counts()
	return batchSummary{
		ID:        b.ID,
		Profile:   b.Profile,
		CreatedAt: b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Images:    len(b.Images),
		Resolved:  resolved,
		Failed:    failed,
	}
}
