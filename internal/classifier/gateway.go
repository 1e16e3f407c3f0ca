// Package classifier talks to the three remote inference services that
// label an uploaded garment: clothing category, fabric type and color
// brightness. The services are black boxes reached over HTTP; this package
// only sends the image, tolerates their response shapes and reports health.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	// FormField is the multipart field every predict endpoint reads the image from.
	FormField = "file"

	// DefaultRequestTimeout bounds a single predict call against a remote service.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHealthTimeout bounds a single health probe.
	DefaultHealthTimeout = 10 * time.Second

	maxErrorBody = 512
)

// Service identifies one of the remote classifiers.
type Service string

const (
	ServiceClothing Service = "clothing"
	ServiceFabric   Service = "fabric"
	ServiceColor    Service = "color"
)

// Services lists the classifiers in sidebar order.
var Services = []Service{ServiceClothing, ServiceColor, ServiceFabric}

// DisplayName is the label used in the status panel and error messages.
func (s Service) DisplayName() string {
	switch s {
	case ServiceClothing:
		return "Cloth Type API"
	case ServiceFabric:
		return "Fabric API"
	case ServiceColor:
		return "Color API"
	default:
		return string(s)
	}
}

// Request outcomes reported to an Observer.
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

// Observer receives per-call measurements, e.g. for Prometheus.
type Observer interface {
	ObserveRequest(service Service, outcome string, elapsed time.Duration)
	ObserveHealth(service Service, healthy bool)
}

// StatusError is returned when a service answers with anything but 200.
type StatusError struct {
	Service    Service
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service.DisplayName(), e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service.DisplayName(), e.StatusCode, e.Body)
}

// Config holds the base URLs and timeouts of the three services.
type Config struct {
	ClothingURL string
	FabricURL   string
	ColorURL    string

	// RequestTimeout of zero disables the predict timeout.
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithObserver attaches an Observer to every call the gateway makes.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithTransport replaces the HTTP transport used for all calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.transport = rt }
}

// Gateway fans one image out to the three classifiers.
type Gateway struct {
	baseURLs     map[Service]string
	client       *http.Client
	healthClient *http.Client
	transport    http.RoundTripper
	observer     Observer
}

// NewGateway builds a gateway for the configured services.
func NewGateway(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		baseURLs: map[Service]string{
			ServiceClothing: strings.TrimRight(cfg.ClothingURL, "/"),
			ServiceFabric:   strings.TrimRight(cfg.FabricURL, "/"),
			ServiceColor:    strings.TrimRight(cfg.ColorURL, "/"),
		},
	}
	for _, opt := range opts {
		opt(g)
	}

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	g.client = &http.Client{Timeout: cfg.RequestTimeout, Transport: g.transport}
	g.healthClient = &http.Client{Timeout: healthTimeout, Transport: g.transport}
	return g
}

// BaseURL returns the configured base URL of a service.
func (g *Gateway) BaseURL(s Service) string {
	return g.baseURLs[s]
}

// Result joins the outcome of the three classifiers for one image. Each
// service either produced a prediction or an error, never both.
type Result struct {
	Clothing    *ClothingPrediction
	ClothingErr error
	Fabric      *FabricPrediction
	FabricErr   error
	Color       *ColorPrediction
	ColorErr    error
}

// Classify sends the JPEG payload to all three services concurrently and
// waits for every call to finish or fail. Failures are recorded per service
// and never abort the other calls.
func (g *Gateway) Classify(ctx context.Context, filename string, jpeg []byte) *Result {
	res := &Result{}

	var eg errgroup.Group
	eg.Go(func() error {
		res.Clothing, res.ClothingErr = g.PredictClothing(ctx, filename, jpeg)
		return nil
	})
	eg.Go(func() error {
		res.Fabric, res.FabricErr = g.PredictFabric(ctx, filename, jpeg)
		return nil
	})
	eg.Go(func() error {
		res.Color, res.ColorErr = g.PredictColor(ctx, filename, jpeg)
		return nil
	})
	_ = eg.Wait()

	return res
}

// PredictClothing asks the clothing-category service about the image.
func (g *Gateway) PredictClothing(ctx context.Context, filename string, jpeg []byte) (*ClothingPrediction, error) {
	body, err := g.predict(ctx, ServiceClothing, filename, jpeg)
	if err != nil {
		return nil, err
	}
	pred, err := parseClothing(body)
	g.observeDecode(ServiceClothing, err)
	return pred, err
}

// PredictFabric asks the fabric service about the image. A response that
// carries no fabric under any known alias is not an error here: the
// prediction comes back with an empty FabricType and the raw body.
func (g *Gateway) PredictFabric(ctx context.Context, filename string, jpeg []byte) (*FabricPrediction, error) {
	body, err := g.predict(ctx, ServiceFabric, filename, jpeg)
	if err != nil {
		return nil, err
	}
	pred, err := parseFabric(body)
	g.observeDecode(ServiceFabric, err)
	return pred, err
}

// PredictColor asks the color-brightness service about the image.
func (g *Gateway) PredictColor(ctx context.Context, filename string, jpeg []byte) (*ColorPrediction, error) {
	body, err := g.predict(ctx, ServiceColor, filename, jpeg)
	if err != nil {
		return nil, err
	}
	pred, err := parseColor(body)
	g.observeDecode(ServiceColor, err)
	return pred, err
}

func (g *Gateway) predict(ctx context.Context, service Service, filename string, jpeg []byte) ([]byte, error) {
	payload, contentType, err := multipartImage(filename, jpeg)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", service, err)
	}

	url := g.baseURLs[service] + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", service, err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.observe(service, OutcomeTransportError, start)
		return nil, fmt.Errorf("failed to call %s: %w", service.DisplayName(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.observe(service, OutcomeTransportError, start)
		return nil, fmt.Errorf("failed to read %s response: %w", service.DisplayName(), err)
	}

	if resp.StatusCode != http.StatusOK {
		g.observe(service, OutcomeHTTPError, start)
		slog.Warn("Classifier returned non-200", "service", service, "status", resp.StatusCode)
		return nil, &StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}

	g.observe(service, OutcomeOK, start)
	slog.Debug("Classifier responded", "service", service, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}

func (g *Gateway) observe(service Service, outcome string, start time.Time) {
	if g.observer != nil {
		g.observer.ObserveRequest(service, outcome, time.Since(start))
	}
}

// observeDecode records malformed bodies; the transport outcome was already counted as ok.
func (g *Gateway) observeDecode(service Service, err error) {
	if err == nil || g.observer == nil {
		return
	}
	var decErr *decodeError
	if errors.As(err, &decErr) {
		g.observer.ObserveRequest(service, OutcomeDecodeError, 0)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartImage(filename string, jpeg []byte) (io.Reader, string, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
