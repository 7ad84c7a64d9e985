package web_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"growpilot/internal/adapters/export"
	"growpilot/internal/blob"
	"growpilot/internal/core"
	"growpilot/internal/session"
	"growpilot/internal/web"
)

var now = time.Date(2024, time.June, 10, 8, 30, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	sessions *session.Manager
}

func newHarness(t *testing.T, opts ...web.Option) *harness {
	t.Helper()
	svc := core.NewService(core.WithClock(core.ClockFunc(func() time.Time { return now })))
	sessions := session.NewManager(core.StoreOpener(core.StorageMemory))
	handler, err := web.NewServer(svc, sessions, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		sessions.Close()
	})
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{t: t, srv: srv, client: client, sessions: sessions}
}

// visitor returns a harness sharing the server but not the cookie jar.
func (h *harness) visitor() *harness {
	h.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		h.t.Fatalf("cookie jar: %v", err)
	}
	client := *h.client
	client.Jar = jar
	return &harness{t: h.t, srv: h.srv, client: &client, sessions: h.sessions}
}

func (h *harness) do(req *http.Request) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	return h.do(req)
}

func (h *harness) postForm(path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) postJSON(path, body string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *harness) upload(path string, payload []byte) (*http.Response, string) {
	h.t.Helper()
	return h.uploadWith(path, nil, payload)
}

func (h *harness) uploadWith(path string, fields map[string]string, payload []byte) (*http.Response, string) {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			h.t.Fatalf("write field %s: %v", k, err)
		}
	}
	part, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		h.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(payload)
	if err := mw.Close(); err != nil {
		h.t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(req)
}

func expectStatus(t *testing.T, resp *http.Response, body string, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.White.Y >> 8)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDashboardStartsSession(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/")
	expectStatus(t, resp, body, http.StatusOK)
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == web.SessionCookie && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected session cookie, got %v", resp.Cookies())
	}
	if !strings.Contains(body, "No harvest data yet.") {
		t.Fatalf("expected empty dashboard, got %s", body)
	}

	resp, body = h.get("/pages/add-plant")
	expectStatus(t, resp, body, http.StatusOK)
	if len(resp.Cookies()) != 0 {
		t.Fatalf("expected the existing session to be reused, got %v", resp.Cookies())
	}
	if h.sessions.Len() != 1 {
		t.Fatalf("expected one session, got %d", h.sessions.Len())
	}
}

func TestUnknownPageIs404(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/pages/compost")
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestFormFlow(t *testing.T) {
	h := newHarness(t)

	resp, body := h.postForm("/pages/log-harvest", url.Values{"plant": {"Tomato"}, "grams": {"10"}})
	expectStatus(t, resp, body, http.StatusBadRequest)
	if !strings.Contains(body, "Add a plant before logging activity.") {
		t.Fatalf("expected no-plants message, got %s", body)
	}

	resp, body = h.postForm("/pages/add-plant", url.Values{"name": {"Tomato"}, "date_planted": {"2024-05-01"}})
	expectStatus(t, resp, body, http.StatusSeeOther)
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/pages/add-plant?flash=") || !strings.Contains(loc, "Tomato") {
		t.Fatalf("unexpected redirect %q", loc)
	}

	resp, body = h.get(loc)
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, "Added Tomato") {
		t.Fatalf("expected flash message, got %s", body)
	}

	resp, body = h.get("/pages/log-harvest")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, "<option>Tomato</option>") {
		t.Fatalf("expected plant option, got %s", body)
	}

	for _, d := range []string{"2024-06-01", "2024-06-02"} {
		resp, body = h.postForm("/pages/log-harvest", url.Values{"plant": {"Tomato"}, "date": {d}, "grams": {"100"}})
		expectStatus(t, resp, body, http.StatusSeeOther)
	}

	resp, body = h.postForm("/pages/log-watering", url.Values{"plant": {"Tomato"}, "liters": {"-2"}})
	expectStatus(t, resp, body, http.StatusBadRequest)
	if !strings.Contains(body, `value="-2"`) {
		t.Fatalf("expected submitted value to be kept, got %s", body)
	}

	resp, body = h.get("/")
	expectStatus(t, resp, body, http.StatusOK)
	for _, want := range []string{"/charts/harvests.png", "/charts/forecast.png", "2024-06-16"} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard missing %q: %s", want, body)
		}
	}
}

func TestJSONAPI(t *testing.T) {
	h := newHarness(t)

	resp, body := h.postJSON("/api/harvests", `{"plant":"Basil","grams":5}`)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = h.postJSON("/api/plants", `{"name":"Basil","date_planted":"2024-05-01"}`)
	expectStatus(t, resp, body, http.StatusCreated)
	var created struct {
		Category string            `json:"category"`
		Record   map[string]string `json:"record"`
		Columns  []string          `json:"columns"`
	}
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Category != "plants" || created.Record["Name"] != "Basil" || len(created.Columns) != 2 {
		t.Fatalf("unexpected response %+v", created)
	}

	resp, body = h.postJSON("/api/watering", `{"plant":"Basil","date":"2024-06-01","liters":1.5}`)
	expectStatus(t, resp, body, http.StatusCreated)
	resp, body = h.postJSON("/api/nutrients", `{"plant":"Basil","product":"Kelp","notes":"half dose"}`)
	expectStatus(t, resp, body, http.StatusCreated)
	resp, body = h.postJSON("/api/harvests", `{"plant":"Mint","grams":5}`)
	expectStatus(t, resp, body, http.StatusBadRequest)
	resp, body = h.postJSON("/api/harvests", `{"plant":"Basil","date":"yesterday","grams":5}`)
	expectStatus(t, resp, body, http.StatusBadRequest)
	resp, body = h.postJSON("/api/harvests", `{not json`)
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = h.get("/api/records/watering")
	expectStatus(t, resp, body, http.StatusOK)
	var table core.Table
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0][2] != "1.5" {
		t.Fatalf("unexpected table %+v", table)
	}

	resp, body = h.get("/api/records/seeds")
	expectStatus(t, resp, body, http.StatusNotFound)

	resp, body = h.get("/api/dashboard")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, `"has_harvests":false`) {
		t.Fatalf("unexpected dashboard %s", body)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	other := h.visitor()

	resp, body := h.postJSON("/api/plants", `{"name":"Basil"}`)
	expectStatus(t, resp, body, http.StatusCreated)

	resp, body = other.get("/api/records/plants")
	expectStatus(t, resp, body, http.StatusOK)
	if strings.Contains(body, "Basil") {
		t.Fatalf("second visitor sees first visitor's plants: %s", body)
	}
}

func TestCSVExport(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"Tomato", "Chili, Red"} {
		resp, body := h.postJSON("/api/plants", `{"name":"`+name+`","date_planted":"2024-05-01"}`)
		expectStatus(t, resp, body, http.StatusCreated)
	}

	resp, body := h.get("/export/plants.csv")
	expectStatus(t, resp, body, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="plants.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "Name" || rows[2][0] != "Chili, Red" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if resp.Header.Get("X-Archive-Key") != "" {
		t.Fatalf("archive should be off by default")
	}

	resp, body = h.get("/export/harvests.json")
	expectStatus(t, resp, body, http.StatusOK)
	if strings.TrimSpace(body) != "[]" {
		t.Fatalf("expected empty json array, got %q", body)
	}

	resp, body = h.get("/export/plants.xml")
	expectStatus(t, resp, body, http.StatusNotFound)
	resp, body = h.get("/export/seeds.csv")
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestExportArchive(t *testing.T) {
	store := blob.NewMemory()
	exp := export.NewExporter(export.WithBlobStore(store), export.WithClock(func() time.Time { return now }))
	h := newHarness(t, web.WithExporter(exp), web.WithArchive(true))

	resp, body := h.get("/export/watering.csv")
	expectStatus(t, resp, body, http.StatusOK)
	key := resp.Header.Get("X-Archive-Key")
	if !strings.HasPrefix(key, "exports/") || !strings.HasSuffix(key, "-watering.csv") {
		t.Fatalf("unexpected archive key %q", key)
	}

	resp, body = h.get("/export/watering.csv")
	expectStatus(t, resp, body, http.StatusOK)
	again := resp.Header.Get("X-Archive-Key")
	if again == "" || again == key {
		t.Fatalf("second download in the same second was not archived separately: %q", again)
	}

	resp, body = h.get("/api/archive")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, key) || !strings.Contains(body, again) {
		t.Fatalf("archive listing missing keys: %s", body)
	}
}

func TestArchiveDisabled(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/api/archive")
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestCharts(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/charts/harvests.png")
	expectStatus(t, resp, body, http.StatusNotFound)

	h.postJSON("/api/plants", `{"name":"Tomato"}`)
	h.postJSON("/api/harvests", `{"plant":"Tomato","date":"2024-06-01","grams":80}`)
	h.postJSON("/api/harvests", `{"plant":"Tomato","date":"2024-06-03","grams":120}`)

	for _, name := range []string{"harvests", "forecast"} {
		resp, body = h.get("/charts/" + name + ".png")
		expectStatus(t, resp, body, http.StatusOK)
		if resp.Header.Get("Content-Type") != "image/png" || !strings.HasPrefix(body, "\x89PNG") {
			t.Fatalf("%s: expected png, got %q", name, resp.Header.Get("Content-Type"))
		}
	}
	resp, body = h.get("/charts/pie.png")
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestBarcodeWithoutCode(t *testing.T) {
	h := newHarness(t)
	resp, body := h.upload("/api/barcode", blankPNG(t))
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, `"warning"`) {
		t.Fatalf("expected warning, got %s", body)
	}

	resp, body = h.upload("/api/barcode", []byte("not an image"))
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = h.upload("/pages/log-nutrients/scan", blankPNG(t))
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, "No barcode found") {
		t.Fatalf("expected scan warning, got %s", body)
	}
}

func TestScanKeepsNutrientForm(t *testing.T) {
	h := newHarness(t)
	resp, body := h.postJSON("/api/plants", `{"name":"Basil"}`)
	expectStatus(t, resp, body, http.StatusCreated)

	resp, body = h.get("/pages/log-nutrients")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, `capture="environment"`) {
		t.Fatalf("expected camera capture on the nutrient form, got %s", body)
	}

	fields := map[string]string{"plant": "Basil", "date": "2024-06-03", "notes": "half dose"}
	resp, body = h.uploadWith("/pages/log-nutrients/scan", fields, blankPNG(t))
	expectStatus(t, resp, body, http.StatusOK)
	for _, want := range []string{"No barcode found", `value="2024-06-03"`, "half dose", "<option selected>Basil</option>"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q after scan, got %s", want, body)
		}
	}
}

func TestSubmitToPageWithoutForm(t *testing.T) {
	h := newHarness(t)
	resp, body := h.postForm("/pages/dashboard", url.Values{"name": {"Basil"}})
	expectStatus(t, resp, body, http.StatusBadRequest)
	if !strings.Contains(body, "this page has no form") {
		t.Fatalf("expected form error, got %s", body)
	}
	if strings.Contains(body, "validation failed") {
		t.Fatalf("error prefix leaked into page: %s", body)
	}
}

func TestEndSession(t *testing.T) {
	h := newHarness(t)
	resp, body := h.postJSON("/api/plants", `{"name":"Basil"}`)
	expectStatus(t, resp, body, http.StatusCreated)

	req, _ := http.NewRequest(http.MethodDelete, h.srv.URL+"/api/session", nil)
	resp, body = h.do(req)
	expectStatus(t, resp, body, http.StatusNoContent)
	if h.sessions.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", h.sessions.Len())
	}

	req, _ = http.NewRequest(http.MethodDelete, h.srv.URL+"/api/session", nil)
	resp, body = h.do(req)
	expectStatus(t, resp, body, http.StatusNotFound)

	resp, body = h.get("/api/records/plants")
	expectStatus(t, resp, body, http.StatusOK)
	if strings.Contains(body, "Basil") {
		t.Fatalf("records survived the session: %s", body)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, web.WithRegistry(reg))
	h.get("/")

	resp, body := h.get("/healthz")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, `"status":"ok"`) || !strings.Contains(body, `"sessions":1`) {
		t.Fatalf("unexpected health %s", body)
	}

	resp, body = h.get("/metrics")
	expectStatus(t, resp, body, http.StatusOK)
	if !strings.Contains(body, "growpilot_http_requests_total") {
		t.Fatalf("metrics missing request counter: %s", body)
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	if _, err := web.NewServer(nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
