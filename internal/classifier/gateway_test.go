package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
)

const (
	clothingURL = "https://cloth.test"
	fabricURL   = "https://fabric.test"
	colorURL    = "https://color.test"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingObserver struct {
	mu       sync.Mutex
	requests map[Service][]string
	health   map[Service]bool
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{requests: map[Service][]string{}, health: map[Service]bool{}}
}

func (o *recordingObserver) ObserveRequest(s Service, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests[s] = append(o.requests[s], outcome)
}

func (o *recordingObserver) ObserveHealth(s Service, healthy bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.health[s] = healthy
}

func newTestGateway(t *testing.T, opts ...Option) (*Gateway, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	opts = append(opts, WithTransport(transport))
	g := NewGateway(Config{
		ClothingURL:    clothingURL + "/",
		FabricURL:      fabricURL,
		ColorURL:       colorURL,
		RequestTimeout: 5 * time.Second,
		HealthTimeout:  time.Second,
	}, opts...)
	return g, transport
}

func registerHappyPath(transport *httpmock.MockTransport) {
	transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"is_clothing": true, "cloth_type": "Shirt", "confidence": 0.91, "all_predictions": {"Shirt": 0.91, "Dress": 0.09}}`))
	transport.RegisterResponder(http.MethodPost, fabricURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"fabric_type": "denim", "confidence": 87.5, "all_predictions": {"denim": 87.5, "cotton": 12.5}}`))
	transport.RegisterResponder(http.MethodPost, colorURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"color": "dark", "confidence": 0.8, "brightness_L": 31.2, "saturation": 12.5, "colorfulness": 8.1}`))
}

func TestClassify_AllServicesSucceed(t *testing.T) {
	obs := newRecordingObserver()
	g, transport := newTestGateway(t, WithObserver(obs))
	registerHappyPath(transport)

	res := g.Classify(context.Background(), "shirt.jpg", []byte("jpeg"))

	require.NoError(t, res.ClothingErr)
	require.NoError(t, res.FabricErr)
	require.NoError(t, res.ColorErr)

	assert.True(t, res.Clothing.IsClothing)
	assert.Equal(t, "Shirt", res.Clothing.ClothType)
	assert.InDelta(t, 0.91, res.Clothing.Confidence, 1e-9)

	assert.Equal(t, "denim", res.Fabric.FabricType)
	assert.Equal(t, "fabric_type", res.Fabric.Alias)
	assert.InDelta(t, 0.875, res.Fabric.Confidence, 1e-9)
	assert.InDelta(t, 0.125, res.Fabric.AllPredictions["cotton"], 1e-9)

	assert.Equal(t, "dark", res.Color.Color)
	require.NotNil(t, res.Color.BrightnessL)
	assert.InDelta(t, 31.2, *res.Color.BrightnessL, 1e-9)

	assert.Equal(t, 3, transport.GetTotalCallCount())
	for _, s := range []Service{ServiceClothing, ServiceFabric, ServiceColor} {
		assert.Equal(t, []string{OutcomeOK}, obs.requests[s], "service %s", s)
	}
}

func TestClassify_SendsJPEGInFileField(t *testing.T) {
	g, transport := newTestGateway(t)
	registerHappyPath(transport)

	transport.RegisterResponder(http.MethodPost, colorURL+"/predict", func(req *http.Request) (*http.Response, error) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		files := req.MultipartForm.File[FormField]
		if len(files) != 1 {
			return httpmock.NewStringResponse(http.StatusBadRequest, "missing file"), nil
		}
		hdr := files[0]
		f, err := hdr.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != `my "top".jpg` || hdr.Header.Get("Content-Type") != "image/jpeg" || string(data) != "payload" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "unexpected part"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"color": "bright", "confidence": 0.6}`), nil
	})

	pred, err := g.PredictColor(context.Background(), `my "top".jpg`, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "bright", pred.Color)
	assert.Nil(t, pred.Saturation)
}

func TestClassify_FabricFailureIsIsolated(t *testing.T) {
	obs := newRecordingObserver()
	g, transport := newTestGateway(t, WithObserver(obs))
	registerHappyPath(transport)
	transport.RegisterResponder(http.MethodPost, fabricURL+"/predict",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "upstream asleep"))

	res := g.Classify(context.Background(), "shirt.jpg", []byte("jpeg"))

	require.Error(t, res.FabricErr)
	assert.Nil(t, res.Fabric)

	var statusErr *StatusError
	require.ErrorAs(t, res.FabricErr, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, ServiceFabric, statusErr.Service)
	assert.Equal(t, "upstream asleep", statusErr.Body)
	assert.Contains(t, statusErr.Error(), "Fabric API returned status 503")

	require.NoError(t, res.ClothingErr)
	require.NoError(t, res.ColorErr)
	assert.Equal(t, "Shirt", res.Clothing.ClothType)
	assert.Equal(t, "dark", res.Color.Color)
	assert.Equal(t, []string{OutcomeHTTPError}, obs.requests[ServiceFabric])
}

func TestClassify_TransportError(t *testing.T) {
	g, transport := newTestGateway(t)
	registerHappyPath(transport)
	transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	res := g.Classify(context.Background(), "x.jpg", []byte("jpeg"))

	require.Error(t, res.ClothingErr)
	assert.Contains(t, res.ClothingErr.Error(), "Cloth Type API")
	assert.NoError(t, res.FabricErr)
	assert.NoError(t, res.ColorErr)
}

func TestPredictFabric_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		alias    string
	}{
		{"predicted_class wins", `{"predicted_class": "silk", "fabric_type": "denim", "class": "linen"}`, "silk", "predicted_class"},
		{"fabric_type", `{"fabric_type": "Leather", "confidence": 0.7}`, "Leather", "fabric_type"},
		{"class", `{"class": "linen"}`, "linen", "class"},
		{"prediction", `{"prediction": "polyester"}`, "polyester", "prediction"},
		{"empty alias skipped", `{"predicted_class": "", "class": "cotton"}`, "cotton", "class"},
		{"non-string alias skipped", `{"predicted_class": 3, "fabric_type": "silk"}`, "silk", "fabric_type"},
		{"no alias", `{"label": "silk", "confidence": 0.4}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, transport := newTestGateway(t)
			transport.RegisterResponder(http.MethodPost, fabricURL+"/predict",
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			pred, err := g.PredictFabric(context.Background(), "f.jpg", []byte("jpeg"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, pred.FabricType)
			assert.Equal(t, tt.alias, pred.Alias)
			assert.JSONEq(t, tt.body, string(pred.Raw))
		})
	}
}

func TestPredictFabric_ProbabilitiesFallback(t *testing.T) {
	g, transport := newTestGateway(t)
	transport.RegisterResponder(http.MethodPost, fabricURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"class": "silk", "confidence": 0.66, "probabilities": {"silk": 66, "linen": 34}}`))

	pred, err := g.PredictFabric(context.Background(), "f.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.InDelta(t, 0.66, pred.Confidence, 1e-9)
	assert.InDelta(t, 0.34, pred.AllPredictions["linen"], 1e-9)
}

func TestPredictClothing_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"missing cloth_type", `{"is_clothing": true, "confidence": 0.5}`, ErrMissingClothType},
		{"missing cloth_type and flag", `{"confidence": 0.5}`, ErrMissingClothType},
		{"not json", `<html>oops</html>`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, transport := newTestGateway(t)
			transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			_, err := g.PredictClothing(context.Background(), "c.jpg", []byte("jpeg"))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPredictClothing_NotClothingSentinel(t *testing.T) {
	g, transport := newTestGateway(t)
	transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"is_clothing": false, "cloth_type": "Not Clothing", "confidence": 0.97}`))

	pred, err := g.PredictClothing(context.Background(), "cat.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.False(t, pred.IsClothing)
	assert.Equal(t, "Not Clothing", pred.ClothType)
}

func TestPredictClothing_NotClothingWithoutType(t *testing.T) {
	g, transport := newTestGateway(t)
	transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"is_clothing": false, "confidence": 0.97}`))

	pred, err := g.PredictClothing(context.Background(), "cat.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.False(t, pred.IsClothing)
	assert.Equal(t, care.NotClothingLabel, pred.ClothType)
	assert.InDelta(t, 0.97, pred.Confidence, 1e-9)
}

func TestPredictClothing_AbsentFlagMeansClothing(t *testing.T) {
	g, transport := newTestGateway(t)
	transport.RegisterResponder(http.MethodPost, clothingURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"cloth_type": "Coat", "confidence": 0.5}`))

	pred, err := g.PredictClothing(context.Background(), "coat.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.True(t, pred.IsClothing)
}

func TestPredictColor_UnknownLabel(t *testing.T) {
	g, transport := newTestGateway(t)
	transport.RegisterResponder(http.MethodPost, colorURL+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"color": "beige", "confidence": 0.5}`))

	_, err := g.PredictColor(context.Background(), "c.jpg", []byte("jpeg"))
	assert.ErrorIs(t, err, ErrMissingColor)
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		in, expected float64
	}{
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{87.5, 0.875},
		{100, 1},
		{-3, 0},
		{250, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, NormalizeConfidence(tt.in), 1e-9, "input %v", tt.in)
	}
}

func TestNormalizeDistribution_DecidesScalePerMap(t *testing.T) {
	got := NormalizeDistribution(map[string]float64{"silk": 99.5, "linen": 0.5})
	assert.InDelta(t, 0.995, got["silk"], 1e-9)
	assert.InDelta(t, 0.005, got["linen"], 1e-9)

	got = NormalizeDistribution(map[string]float64{"silk": 0.7, "linen": 0.3})
	assert.InDelta(t, 0.7, got["silk"], 1e-9)

	assert.Nil(t, NormalizeDistribution(nil))
}

func TestCheckHealth(t *testing.T) {
	obs := newRecordingObserver()
	g, transport := newTestGateway(t, WithObserver(obs))
	transport.RegisterResponder(http.MethodGet, clothingURL+"/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status": "healthy"}`))
	transport.RegisterResponder(http.MethodGet, fabricURL+"/health",
		httpmock.NewStringResponder(http.StatusInternalServerError, "down"))
	transport.RegisterResponder(http.MethodGet, colorURL+"/health",
		httpmock.NewErrorResponder(errors.New("dial tcp: no such host")))

	status := g.CheckHealth(context.Background())

	assert.Equal(t, map[Service]bool{
		ServiceClothing: true,
		ServiceFabric:   false,
		ServiceColor:    false,
	}, status)
	assert.Equal(t, status, obs.health)
}

func TestDisplayNames(t *testing.T) {
	assert.Equal(t, "Cloth Type API", ServiceClothing.DisplayName())
	assert.Equal(t, "Fabric API", ServiceFabric.DisplayName())
	assert.Equal(t, "Color API", ServiceColor.DisplayName())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc…"},
		{"inside rune", "aé", 2, "a…"},
		{"rune boundary", "éa", 2, "é…"},
		{"inside four byte rune", "ab🧵", 4, "ab…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
