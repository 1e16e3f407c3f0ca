package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/analysis"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/storage"
)

type stubClassifier map[string]*classifier.Result

func (s stubClassifier) Classify(ctx context.Context, filename string, jpeg []byte) *classifier.Result {
	if res, ok := s[filename]; ok {
		return res
	}
	return &classifier.Result{
		Clothing: &classifier.ClothingPrediction{IsClothing: true, ClothType: "Shirt", Confidence: 0.5},
		Fabric:   &classifier.FabricPrediction{FabricType: "cotton", Confidence: 0.5},
		Color:    &classifier.ColorPrediction{Color: "bright", Confidence: 0.5},
	}
}

type stubHealth map[classifier.Service]bool

func (s stubHealth) CheckHealth(ctx context.Context) map[classifier.Service]bool {
	return s
}

func float(v float64) *float64 { return &v }

var results = stubClassifier{
	"jeans.png": {
		Clothing: &classifier.ClothingPrediction{IsClothing: true, ClothType: "Pants", Confidence: 0.93,
			AllPredictions: map[string]float64{"Pants": 0.93, "Shorts": 0.07}},
		Fabric: &classifier.FabricPrediction{FabricType: "denim", Confidence: 0.81,
			WashingAdvice: "Turn inside out before washing",
			AllPredictions: map[string]float64{"denim": 0.81, "cotton": 0.19}},
		Color: &classifier.ColorPrediction{Color: "dark", Confidence: 0.7, BrightnessL: float(31.34)},
	},
	"cat.png": {
		Clothing: &classifier.ClothingPrediction{IsClothing: false, ClothType: "Not Clothing", Confidence: 0.99},
		Fabric:   &classifier.FabricPrediction{FabricType: "silk"},
		Color:    &classifier.ColorPrediction{Color: "bright"},
	},
	"outage.png": {
		Clothing:  &classifier.ClothingPrediction{IsClothing: true, ClothType: "Dress", Confidence: 0.6},
		FabricErr: &classifier.StatusError{Service: classifier.ServiceFabric, StatusCode: 503},
		Color:     &classifier.ColorPrediction{Color: "bright"},
	},
	"jacket.png": {
		Clothing: &classifier.ClothingPrediction{IsClothing: true, ClothType: "Jacket", Confidence: 0.8},
		Fabric:   &classifier.FabricPrediction{FabricType: "leather", Confidence: 0.9},
		Color:    &classifier.ColorPrediction{Color: "dark"},
	},
	"mystery.png": {
		Clothing: &classifier.ClothingPrediction{IsClothing: true, ClothType: "Top", Confidence: 0.8},
		Fabric:   &classifier.FabricPrediction{Raw: json.RawMessage(`{"label":"wool"}`)},
		Color:    &classifier.ColorPrediction{Color: "dark"},
	},
	"beige.png": {
		Clothing: &classifier.ClothingPrediction{IsClothing: true, ClothType: "Top", Confidence: 0.8},
		Fabric:   &classifier.FabricPrediction{FabricType: "linen", Confidence: 0.7},
		Color:    &classifier.ColorPrediction{Color: "beige", Confidence: 0.4},
	},
}

func newTestHandler(t *testing.T) (*Handler, *http.ServeMux, *[]*models.Batch) {
	t.Helper()
	var seen []*models.Batch
	h := New(Options{
		Analyzer: analysis.NewService(results, nil, "production"),
		Health:   stubHealth{classifier.ServiceClothing: true, classifier.ServiceFabric: false, classifier.ServiceColor: true},
		Store:    storage.New(0),
		BaseURLs: map[classifier.Service]string{classifier.ServiceFabric: "https://fabric.example"},
		MaxFiles: 3,
		OnBatch:  func(b *models.Batch) { seen = append(seen, b) },
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	return h, mux, &seen
}

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, field string, filenames ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	data := pngData(t)
	for _, name := range filenames {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleIndex(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	for _, want := range []string{
		`name="files" multiple`,
		`accept=".jpg,.jpeg,.png,.webp"`,
		"Cloth Type API: Checking",
		"Fabric API: Checking",
		"Color API: Checking",
		"Silk",
		"Tops &amp; Upper Body",
		"Jumpsuit",
		"/api/health",
	} {
		assert.Contains(t, body, want)
	}

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAnalyze_RendersEveryImageInOrder(t *testing.T) {
	h, mux, seen := newTestHandler(t)

	rec := serve(mux, multipartRequest(t, "/analyze", "files", "jeans.png", "outage.png", "cat.png"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()

	// Order follows the upload.
	iJeans := strings.Index(body, "jeans.png")
	iOutage := strings.Index(body, "outage.png")
	iCat := strings.Index(body, "cat.png")
	assert.True(t, iJeans < iOutage && iOutage < iCat, "images out of order")

	assert.Contains(t, body, "Denim — Preserve the Color")
	assert.Contains(t, body, "Pants")
	assert.Contains(t, body, "93.0%")
	assert.Contains(t, body, "Dark Clothes Care:")
	assert.Contains(t, body, "Fabric Care</strong>: Turn inside out before washing")
	assert.Contains(t, body, "Brightness: 31.3")
	assert.Contains(t, body, "Fabric API Error: Fabric API returned status 503")
	assert.Contains(t, body, "Not Clothing")
	assert.Contains(t, body, `src="data:image/jpeg;base64,`)

	require.Len(t, *seen, 1)
	assert.Equal(t, 1, h.store.Len())
}

func TestHandleAnalyze_ResolverStates(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	rec := serve(mux, multipartRequest(t, "/analyze", "files", "jacket.png", "mystery.png", "beige.png"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "leather-tip")
	assert.Contains(t, body, "Could not determine fabric type from API response")
	assert.Contains(t, body, "wool")
	assert.Contains(t, body, "Could not determine color")
	assert.Contains(t, body, "Linen")
}

func TestHandleAnalyze_Rejects(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(mux, multipartRequest(t, "/analyze", "other"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, multipartRequest(t, "/analyze", "files", "a.png", "b.png", "c.png", "d.png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many files")
}

func TestHandleUpload_Multipart(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	rec := serve(mux, multipartRequest(t, "/api/upload", "file", "jeans.png"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		BatchID  string       `json:"batch_id"`
		Images   int          `json:"images"`
		Resolved int          `json:"resolved"`
		Batch    models.Batch `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 1, resp.Images)
	assert.Equal(t, 1, resp.Resolved)
	require.Len(t, resp.Batch.Images, 1)
	assert.Equal(t, "denim", resp.Batch.Images[0].Plan.Fabric)
}

func TestHandleUpload_ImageURL(t *testing.T) {
	data := pngData(t)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer remote.Close()

	_, mux, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"image_url": "`+remote.URL+`/jacket.png"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(mux, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"leather_only"`)

	req = httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(mux, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpload_FailedURLIsScopedToOneImage(t *testing.T) {
	data := pngData(t)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer remote.Close()

	_, mux, _ := newTestHandler(t)

	body := `{"image_urls": ["` + remote.URL + `/jeans.png", "` + remote.URL + `/missing.png", "ftp://bad.test/x.png"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(mux, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Resolved int          `json:"resolved"`
		Failed   int          `json:"failed"`
		Batch    models.Batch `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Resolved)
	assert.Equal(t, 2, resp.Failed)
	require.Len(t, resp.Batch.Images, 3)

	assert.Equal(t, "jeans.png", resp.Batch.Images[0].Filename)
	assert.Equal(t, "denim", resp.Batch.Images[0].Plan.Fabric)
	assert.Equal(t, "missing.png", resp.Batch.Images[1].Filename)
	assert.Contains(t, resp.Batch.Images[1].IntakeError, "HTTP 404")
	assert.Equal(t, "x.png", resp.Batch.Images[2].Filename)
	assert.Contains(t, resp.Batch.Images[2].IntakeError, "invalid image URL")
}

func TestBatchEndpoints(t *testing.T) {
	_, mux, seen := newTestHandler(t)

	rec := serve(mux, multipartRequest(t, "/api/upload", "files", "jeans.png", "outage.png"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *seen, 1)
	id := (*seen)[0].ID

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/batches", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []batchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 2, list[0].Images)
	assert.Equal(t, 1, list[0].Resolved)
	assert.Equal(t, 1, list[0].Failed)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var batch models.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, "jeans.png", batch.Images[0].Filename)
	assert.Equal(t, "outage.png", batch.Images[1].Filename)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/batches/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Denim — Preserve the Color")

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "/batches/"+id)

	rec = serve(mux, httptest.NewRequest(http.MethodDelete, "/api/batches/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/batches/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	_, mux, _ := newTestHandler(t)

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Services []serviceStatus `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Services, 3)

	assert.Equal(t, "clothing", resp.Services[0].Service)
	assert.Equal(t, "Cloth Type API", resp.Services[0].Name)
	assert.True(t, resp.Services[0].Healthy)

	assert.Equal(t, "color", resp.Services[1].Service)
	assert.True(t, resp.Services[1].Healthy)

	assert.Equal(t, "fabric", resp.Services[2].Service)
	assert.False(t, resp.Services[2].Healthy)
	assert.Equal(t, "https://fabric.example", resp.Services[2].URL)

	rec = serve(mux, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTemplateHelpers(t *testing.T) {
	assert.Equal(t, "87.5%", percent(0.875))
	assert.Equal(t, "Dark", titleCase("dark"))
	assert.Equal(t, "Polyester Blend", titleCase("polyester blend"))

	got := ranked(map[string]float64{"silk": 0.1, "denim": 0.6, "cotton": 0.3})
	require.Len(t, got, 3)
	assert.Equal(t, "denim", got[0].Label)
	assert.Equal(t, "silk", got[2].Label)

	assert.Equal(t, "javascript:alert(1)", previewURL("javascript:alert(1)"))
}
