package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/segnalazioni/internal/auth"
	"github.com/vbonduro/segnalazioni/internal/db"
	"github.com/vbonduro/segnalazioni/internal/dispatch"
	"github.com/vbonduro/segnalazioni/internal/metrics"
	"github.com/vbonduro/segnalazioni/internal/photostore"
	"github.com/vbonduro/segnalazioni/internal/service"
	"github.com/vbonduro/segnalazioni/internal/store"
	"github.com/vbonduro/segnalazioni/internal/upload"
	"github.com/vbonduro/segnalazioni/internal/web"
)

const (
	operatorUser = "consigliere"
	operatorPass = "segreto"
	clientOrigin = "http://localhost:5173"
)

// memPhotoStore is a simple in-memory implementation of photostore.PhotoStore.
type memPhotoStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	mimes   map[string]string
	counter int
}

func newMemPhotoStore() *memPhotoStore {
	return &memPhotoStore{
		data:  make(map[string][]byte),
		mimes: make(map[string]string),
	}
}

func (m *memPhotoStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	key := fmt.Sprintf("%s-%d%s", prefix, m.counter, photostore.KeyExt(mimeType))
	m.data[key] = data
	m.mimes[key] = mimeType
	return key, nil
}

func (m *memPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, "", photostore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.mimes[key], nil
}

func (m *memPhotoStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.mimes, key)
	return nil
}

func (m *memPhotoStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type testEnv struct {
	srv    *httptest.Server
	app    *web.Server
	photos *memPhotoStore
}

// newTestEnv wires a real web.Server over in-memory SQLite and an in-memory
// photo store. mutate may adjust the server options before construction.
func newTestEnv(t *testing.T, mutate ...func(*web.Options)) *testEnv {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	photos := newMemPhotoStore()
	m := metrics.New()

	opts := web.Options{
		Verifier:       auth.Static{User: operatorUser, Pass: operatorPass},
		Metrics:        m,
		AllowedOrigins: []string{clientOrigin},
		MaxUploadBytes: 1 << 20,
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	svc := service.NewReportService(
		store.NewReportStore(database),
		upload.NewImageAcceptor(photos),
		photos,
		&dispatch.Formatter{},
		m,
		logger,
		opts.MaxUploadBytes,
	)
	app := web.NewServer(svc, photos, opts, logger)
	srv := httptest.NewServer(app)
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})
	return &testEnv{srv: srv, app: app, photos: photos}
}

type reportJSON struct {
	ID                string   `json:"id"`
	Category          string   `json:"category"`
	Description       string   `json:"description"`
	Address           string   `json:"address"`
	Lat               *float64 `json:"lat"`
	Lng               *float64 `json:"lng"`
	PhotoPath         string   `json:"photo_path"`
	ReporterFirstName string   `json:"reporter_first_name"`
	ReporterLastName  string   `json:"reporter_last_name"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
	PhotoURL          string   `json:"photoUrl"`
	Message           string   `json:"message"`
	WhatsAppURL       string   `json:"whatsappUrl"`
}

func validFields() map[string]string {
	return map[string]string{
		"category":    "rifiuti",
		"description": "Rifiuti abbandonati da tre giorni",
		"lat":         "41.117",
		"lng":         "16.871",
	}
}

func testPNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := range size {
		for y := range size {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildMultipartBody creates a multipart/form-data body with the given
// fields and, when photo is non-nil, a "photo" file part.
func buildMultipartBody(t *testing.T, fields map[string]string, photo []byte) (body *bytes.Buffer, contentType string) {
	t.Helper()
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if photo != nil {
		fw, err := w.CreateFormFile("photo", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (e *testEnv) postReport(t *testing.T, fields map[string]string, photo []byte) *http.Response {
	t.Helper()
	body, ct := buildMultipartBody(t, fields, photo)
	resp, err := http.Post(e.srv.URL+"/api/reports", ct, body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) createReport(t *testing.T, fields map[string]string) reportJSON {
	t.Helper()
	resp := e.postReport(t, fields, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))
	var out reportJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) operatorRequest(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	req.SetBasicAuth(operatorUser, operatorPass)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) list(t *testing.T, query string) []reportJSON {
	t.Helper()
	resp := e.operatorRequest(t, http.MethodGet, "/api/reports?"+query, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(t, resp))
	var out []reportJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) patchStatus(t *testing.T, id, status string) *http.Response {
	t.Helper()
	return e.operatorRequest(t, http.MethodPatch, "/api/reports/"+id+"/status",
		strings.NewReader(fmt.Sprintf(`{"status":%q}`, status)))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return string(data)
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &out))
	return out.Error
}

func ids(reports []reportJSON) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.ID)
	}
	return out
}

func TestIntegration_CreateUpdateListFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	before := time.Now().UTC().Truncate(time.Millisecond)
	created := env.createReport(t, validFields())

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "nuova", created.Status)
	assert.Equal(t, "rifiuti", created.Category)
	require.NotNil(t, created.Lat)
	assert.InDelta(t, 41.117, *created.Lat, 1e-9)
	assert.Empty(t, created.PhotoURL)
	createdAt, err := time.Parse(time.RFC3339, created.CreatedAt)
	require.NoError(t, err)
	assert.False(t, createdAt.Before(before), "created_at %s before request %s", createdAt, before)

	assert.Contains(t, created.Message, "ID: "+created.ID)
	assert.Contains(t, created.Message, "Categoria: Rifiuti per strada")
	assert.True(t, strings.HasPrefix(created.WhatsAppURL, "https://wa.me/?text="))

	resp := env.patchStatus(t, created.ID, "in_lavorazione")
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(t, resp))
	assert.JSONEq(t, `{"ok":true}`, readBody(t, resp))

	assert.Equal(t, []string{created.ID}, ids(env.list(t, "status=in_lavorazione")))
	assert.Empty(t, env.list(t, "status=nuova"))
}

func TestIntegration_CreateWithPhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	photo := testPNG(t, 8)

	fields := validFields()
	fields["address"] = "Via Roma 1"
	fields["reporterFirstName"] = "Anna"
	fields["reporterLastName"] = "Rossi"
	resp := env.postReport(t, fields, photo)
	require.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))

	var created reportJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, strings.HasPrefix(created.PhotoPath, "/uploads/"+created.ID+"-"), created.PhotoPath)
	assert.Equal(t, env.srv.URL+created.PhotoPath, created.PhotoURL)
	assert.Equal(t, "Anna", created.ReporterFirstName)
	assert.Contains(t, created.Message, "Foto: "+created.PhotoURL)
	assert.Contains(t, created.Message, "Segnalante: Anna Rossi.")

	photoResp, err := http.Get(created.PhotoURL)
	require.NoError(t, err)
	defer photoResp.Body.Close()
	require.Equal(t, http.StatusOK, photoResp.StatusCode)
	assert.Equal(t, "image/png", photoResp.Header.Get("Content-Type"))
	got, err := io.ReadAll(photoResp.Body)
	require.NoError(t, err)
	assert.Equal(t, photo, got)

	listed := env.list(t, "")
	require.Len(t, listed, 1)
	assert.Equal(t, created.PhotoURL, listed[0].PhotoURL)
	assert.Equal(t, "Rossi", listed[0].ReporterLastName)
}

func TestIntegration_CreateGuided(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	fields := validFields()
	delete(fields, "description")
	fields["category"] = "asfalto"
	fields["issue"] = "buca profonda"
	fields["timeframe"] = "2 settimane"
	fields["impact"] = "rischio cadute"

	created := env.createReport(t, fields)
	assert.Equal(t,
		"Dissesto stradale: buca profonda. Da quanto tempo: 2 settimane. Rischi/impatto: rischio cadute.",
		created.Description)

	fields["impact"] = "no"
	resp := env.postReport(t, fields, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntegration_CreateURLEncoded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	form := url.Values{}
	for k, v := range validFields() {
		form.Set(k, v)
	}
	resp, err := http.PostForm(env.srv.URL+"/api/reports", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))
}

func TestIntegration_CreateValidationErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantMsg string
	}{
		{"short description", func(f map[string]string) { f["description"] = "corta" }, "description must be at least 10 characters"},
		{"missing description", func(f map[string]string) { delete(f, "description") }, "category and description are required"},
		{"missing category", func(f map[string]string) { delete(f, "category") }, "category and description are required"},
		{"missing lat", func(f map[string]string) { delete(f, "lat") }, "lat and lng are required"},
		{"non-finite lng", func(f map[string]string) { f["lng"] = "Infinity" }, ""},
		{"unknown category", func(f map[string]string) { f["category"] = "buche" }, ""},
		{"lat out of range", func(f map[string]string) { f["lat"] = "123" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(fields)
			resp := env.postReport(t, fields, testPNG(t, 4))
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			msg := errorMessage(t, resp)
			assert.NotEmpty(t, msg)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, msg)
			}
		})
	}

	assert.Empty(t, env.list(t, ""), "no row persisted")
	assert.Zero(t, env.photos.Len(), "no photo stored")
}

func TestIntegration_CreateRejectsNonImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	resp := env.postReport(t, validFields(), []byte("%PDF-1.4 definitely not a photo"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, upload.ErrUnsupportedType.Error(), errorMessage(t, resp))

	assert.Empty(t, env.list(t, ""))
	assert.Zero(t, env.photos.Len())
}

func TestIntegration_CreateRejectsOversizePhoto(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t, func(o *web.Options) { o.MaxUploadBytes = 64 })

	resp := env.postReport(t, validFields(), testPNG(t, 64))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	assert.Empty(t, env.list(t, ""))
	assert.Zero(t, env.photos.Len())
}

func TestIntegration_CreateRejectsOversizeBody(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t, func(o *web.Options) { o.MaxUploadBytes = 64 })

	body, ct := buildMultipartBody(t, validFields(), bytes.Repeat([]byte{0x89}, 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/reports", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, env.photos.Len())
}

func TestIntegration_OperatorRoutesRequireAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	created := env.createReport(t, validFields())

	routes := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/reports", ""},
		{http.MethodGet, "/api/reports?status=nuova&q=Rifiuti", ""},
		{http.MethodGet, "/api/reports/stats", ""},
		{http.MethodGet, "/api/reports/" + created.ID, ""},
		{http.MethodGet, "/api/reports/" + created.ID + "/message", ""},
		{http.MethodPatch, "/api/reports/" + created.ID + "/status", `{"status":"chiusa"}`},
	}
	creds := []struct {
		name       string
		user, pass string
		set        bool
	}{
		{"none", "", "", false},
		{"wrong password", operatorUser, "sbagliata", true},
		{"wrong user", "admin", operatorPass, true},
	}

	for _, route := range routes {
		for _, c := range creds {
			t.Run(route.method+" "+route.path+" "+c.name, func(t *testing.T) {
				req, err := http.NewRequest(route.method, env.srv.URL+route.path, strings.NewReader(route.body))
				require.NoError(t, err)
				if c.set {
					req.SetBasicAuth(c.user, c.pass)
				}
				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				defer resp.Body.Close()

				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
				assert.Equal(t, `Basic realm="Admin"`, resp.Header.Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"Unauthorized"}`, readBody(t, resp))
			})
		}
	}

	// The unauthorized PATCH attempts changed nothing.
	got := env.list(t, "")
	require.Len(t, got, 1)
	assert.Equal(t, "nuova", got[0].Status)
}

func TestIntegration_UpdateStatusErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	created := env.createReport(t, validFields())

	resp := env.patchStatus(t, created.ID, "archiviata")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid status", errorMessage(t, resp))

	resp = env.patchStatus(t, "does-not-exist", "chiusa")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "report not found", errorMessage(t, resp))

	resp = env.operatorRequest(t, http.MethodPatch, "/api/reports/"+created.ID+"/status", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	got := env.list(t, "")
	require.Len(t, got, 1)
	assert.Equal(t, "nuova", got[0].Status)
}

func TestIntegration_BackwardTransitionAccepted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	created := env.createReport(t, validFields())

	for _, st := range []string{"chiusa", "nuova", "in_lavorazione", "nuova"} {
		resp := env.patchStatus(t, created.ID, st)
		require.Equal(t, http.StatusOK, resp.StatusCode, st)
	}
	assert.Equal(t, []string{created.ID}, ids(env.list(t, "status=nuova")))
}

func TestIntegration_ListFiltersAndOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	a := env.createReport(t, validFields())
	bf := validFields()
	bf["category"] = "luci"
	bf["description"] = "Semaforo lampeggiante all'incrocio"
	bf["address"] = "Piazza Garibaldi"
	b := env.createReport(t, bf)
	cf := validFields()
	cf["category"] = "luci"
	cf["description"] = "Lampione spento da una settimana"
	c := env.createReport(t, cf)
	require.Equal(t, http.StatusOK, env.patchStatus(t, c.ID, "chiusa").StatusCode)

	all := env.list(t, "")
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].CreatedAt, all[i].CreatedAt, "non-increasing created_at")
	}
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, ids(all))

	assert.Equal(t, []string{c.ID, b.ID}, ids(env.list(t, "category=luci")))
	assert.Equal(t, []string{b.ID}, ids(env.list(t, "category=luci&status=nuova")))
	assert.Equal(t, []string{b.ID}, ids(env.list(t, "q=Garibaldi")))
	assert.Equal(t, []string{c.ID}, ids(env.list(t, "q=Lampione")))
	assert.Empty(t, env.list(t, "q=lampione"))
	assert.Empty(t, env.list(t, "q=%20Lampione"))
	assert.Empty(t, env.list(t, "q=%20%20%20"))
	assert.Equal(t, []string{c.ID}, ids(env.list(t, "q=spento%20da")))
	assert.Equal(t, []string{c.ID}, ids(env.list(t, "limit=1")))
	assert.Equal(t, []string{b.ID}, ids(env.list(t, "limit=1&offset=1")))
	assert.Len(t, env.list(t, "limit=abc&offset=-3"), 3)
	assert.Empty(t, env.list(t, "status=sconosciuto"))
}

func TestIntegration_ListEmptyIsArray(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	resp := env.operatorRequest(t, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, readBody(t, resp))
}

func TestIntegration_GetReportAndMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	created := env.createReport(t, validFields())

	resp := env.operatorRequest(t, http.MethodGet, "/api/reports/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got reportJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	resp = env.operatorRequest(t, http.MethodGet, "/api/reports/"+created.ID+"/message?whatsapp=%2B39%20080%20123", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg struct {
		Message     string `json:"message"`
		WhatsAppURL string `json:"whatsappUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, created.Message, msg.Message)
	assert.True(t, strings.HasPrefix(msg.WhatsAppURL, "https://wa.me/39080123?text="), msg.WhatsAppURL)

	resp = env.operatorRequest(t, http.MethodGet, "/api/reports/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.operatorRequest(t, http.MethodGet, "/api/reports/missing/message", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_Stats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	env.createReport(t, validFields())
	second := env.createReport(t, validFields())
	require.Equal(t, http.StatusOK, env.patchStatus(t, second.ID, "chiusa").StatusCode)

	resp := env.operatorRequest(t, http.MethodGet, "/api/reports/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"nuova":1,"in_lavorazione":0,"chiusa":1,"total":2}`, readBody(t, resp))
	assert.Len(t, env.list(t, "status=nuova"), 1)
	assert.Len(t, env.list(t, "status=chiusa"), 1)
}

func TestIntegration_PublicEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, readBody(t, resp))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(env.srv.URL + "/api/rules")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rs struct {
		Categories []struct {
			Value string `json:"value"`
		} `json:"categories"`
		DescriptionMinLength int   `json:"description_min_length"`
		MaxUploadBytes       int64 `json:"max_upload_bytes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rs))
	assert.Len(t, rs.Categories, 5)
	assert.Equal(t, 10, rs.DescriptionMinLength)
	assert.Equal(t, int64(1<<20), rs.MaxUploadBytes)

	resp, err = http.Get(env.srv.URL + "/api/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", errorMessage(t, resp))

	resp, err = http.Get(env.srv.URL + "/uploads/missing.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_Metrics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)
	env.createReport(t, validFields())

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `segnalazioni_http_requests_total{method="POST",route="POST /api/reports",status="201"} 1`)
	assert.Contains(t, body, `segnalazioni_reports_created_total{category="rifiuti"} 1`)
}

func TestIntegration_MetricsDisabled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t, func(o *web.Options) { o.Metrics = nil })

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_CORS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/reports", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "authorization")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := preflight(clientOrigin)
	assert.Equal(t, clientOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", clientOrigin)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, clientOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	// Requests without an Origin header pass untouched.
	resp, err = http.Get(env.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestIntegration_CORSEmptyAllowListRefusesAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t, func(o *web.Options) { o.AllowedOrigins = nil })

	for _, origin := range []string{clientOrigin, "https://evil.example"} {
		req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/reports", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), origin)

		req, err = http.NewRequest(http.MethodGet, env.srv.URL+"/api/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestIntegration_PublicBaseURL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestEnv(t, func(o *web.Options) { o.PublicBaseURL = "https://segnala.example" })

	resp := env.postReport(t, validFields(), testPNG(t, 4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created reportJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "https://segnala.example"+created.PhotoPath, created.PhotoURL)
}

func TestIntegration_ForwardedProto(t *testing.T) {
	env := newTestEnv(t)

	body, ct := buildMultipartBody(t, validFields(), testPNG(t, 4))
	req := httptest.NewRequest(http.MethodPost, "http://segnala.example/api/reports", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created reportJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "https://segnala.example"+created.PhotoPath, created.PhotoURL)
}

func TestIntegration_ClientBundle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>app</html>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "assets", "app.js"), []byte("console.log(1)"), 0644))

	env := newTestEnv(t, func(o *web.Options) { o.ClientDist = dist })

	get := func(path string) (int, string) {
		resp, err := http.Get(env.srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode, readBody(t, resp)
	}

	code, body := get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<html>app</html>", body)

	code, body = get("/assets/app.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "console.log(1)", body)

	code, body = get("/operatore")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<html>app</html>", body)

	code, _ = get("/api/nope")
	assert.Equal(t, http.StatusNotFound, code)
}
