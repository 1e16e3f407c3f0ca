package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/intake"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageSet struct {
	index   *template.Template
	results *template.Template
}

func mustParsePages() *pageSet {
	parse := func(page string) *template.Template {
		return template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+page))
	}
	return &pageSet{
		index:   parse("index.html"),
		results: parse("results.html"),
	}
}

var templateFuncs = template.FuncMap{
	"percent":    percent,
	"titleCase":  titleCase,
	"ranked":     ranked,
	"deref":      deref,
	"colorIcon":  colorIcon,
	"previewURL": previewURL,
}

// percent renders a 0-1 confidence as a percentage.
func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func titleCase(v any) string {
	words := strings.Fields(fmt.Sprint(v))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

type probability struct {
	Label string
	Value float64
}

// ranked orders a probability map from most to least likely.
func ranked(m map[string]float64) []probability {
	out := make([]probability, 0, len(m))
	for k, v := range m {
		out = append(out, probability{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// previewURL marks the inline preview produced by intake as safe for an img
// src. Anything else is left to html/template's URL filtering.
func previewURL(uri string) any {
	if strings.HasPrefix(uri, "data:image/jpeg;base64,") {
		return template.URL(uri)
	}
	return uri
}

func colorIcon(c care.ColorClass) string {
	if c == care.Dark {
		return "🌑"
	}
	return "🌟"
}

type sidebar struct {
	Services   []serviceStatus
	Fabrics    []string
	Colors     []string
	Categories []care.CategoryGroup
}

type pageData struct {
	Title     string
	Sidebar   sidebar
	Accept    string
	MaxFiles  int
	MaxFileMB int

	Batch    *models.Batch
	Resolved int
	Failed   int

	Recent []batchSummary
}

func (h *Handler) newPage(title string) pageData {
	guide := h.analyzer.Guide()

	sb := sidebar{
		Fabrics:    guide.FabricNames(),
		Colors:     []string{"Bright Colors", "Dark Colors"},
		Categories: guide.ClothingCategories,
	}
	for _, s := range classifier.Services {
		sb.Services = append(sb.Services, serviceStatus{Service: string(s), Name: s.DisplayName(), URL: h.baseURLs[s]})
	}

	return pageData{
		Title:     title,
		Sidebar:   sb,
		Accept:    strings.Join(intake.AllowedExtensions, ","),
		MaxFiles:  h.maxFiles,
		MaxFileMB: intake.MaxFileSize / (1024 * 1024),
	}
}

// HandleIndex renders the upload page.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := h.newPage("AI Laundry Sorter")
	for _, b := range h.store.GetAll() {
		data.Recent = append(data.Recent, summarize(b))
	}
	h.render(w, h.pages.index, data)
}

func (h *Handler) renderResults(w http.ResponseWriter, batch *models.Batch) {
	data := h.newPage("Results")
	data.Batch = batch
	data.Resolved, data.Failed = batch.Counts()
	h.render(w, h.pages.results, data)
}

func (h *Handler) render(w http.ResponseWriter, tmpl *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Unable to render page", "template", tmpl.Name(), "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Unable to write page", "err", err)
	}
}
