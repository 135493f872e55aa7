package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/colony-counter/internal/config"
	"github.com/ironsheep/colony-counter/internal/detection"
	"github.com/ironsheep/colony-counter/internal/imaging"
	"github.com/ironsheep/colony-counter/internal/log"
	"github.com/ironsheep/colony-counter/internal/session"
	"github.com/ironsheep/colony-counter/internal/vision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeEngine stands in for the OpenCV engine.
type fakeEngine struct {
	mu       sync.Mutex
	ready    bool
	colonies int
	err      error
}

func (f *fakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) Versions() map[string]string {
	return map[string]string{"backend": "fake"}
}

func (f *fakeEngine) Import(img image.Image) (vision.Handle, error) {
	return vision.NewHandle(nil), nil
}

func (f *fakeEngine) Analyze(ctx context.Context, src vision.Handle, p detection.Params) (*detection.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	colonies := make([]detection.Colony, f.colonies)
	for i := range colonies {
		colonies[i] = detection.Colony{Number: i + 1, ContourIndex: i, Area: 120}
	}
	return &detection.Report{
		Params:    p,
		Count:     f.colonies,
		Contours:  f.colonies,
		Colonies:  colonies,
		Stats:     detection.Summarize(colonies),
		Labeled:   true,
		Width:     16,
		Height:    16,
		Annotated: image.NewRGBA(image.Rect(0, 0, 16, 16)),
	}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PaintDelay = 0
	return cfg
}

func newTestServer(t *testing.T, e *fakeEngine) (*Server, http.Handler) {
	t.Helper()
	s := New(testConfig(), e, log.Discard())
	t.Cleanup(s.Sessions().Close)
	return s, s.Handler()
}

// performRequest runs one request through h.
func performRequest(h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with one file part in field.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = w.Write(data)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error session.ErrorPanel `json:"error"`
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := performRequest(h, http.MethodPost, "/api/sessions", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[session.Snapshot](t, rec).ID
}

func uploadPNG(t *testing.T, h http.Handler, id string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "image", "dish.png", "image/png", pngBytes(t))
	return performRequest(h, http.MethodPost, "/api/sessions/"+id+"/image", body, ct)
}

func TestIndex(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{})
	rec := performRequest(h, http.MethodGet, "/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content type: %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Colony Counter") {
		t.Error("page body missing title")
	}
	// The unload hook must issue the DELETE itself rather than gate it on
	// an unrelated browser API.
	if strings.Contains(rec.Body.String(), "sendBeacon &&") || !strings.Contains(rec.Body.String(), "keepalive: true") {
		t.Error("unload hook should call fetch with keepalive directly")
	}
}

func TestStatus(t *testing.T) {
	e := &fakeEngine{}
	_, h := newTestServer(t, e)

	st := decode[StatusResponse](t, performRequest(h, http.MethodGet, "/api/status", nil, ""))
	if st.Ready {
		t.Error("should not be ready yet")
	}
	if st.Backend != "fake" {
		t.Errorf("backend: %q", st.Backend)
	}
	if len(st.Controls) != 2 {
		t.Errorf("controls: got %d", len(st.Controls))
	}
	if st.Limits.MaxUploadBytes != 5*1024*1024 || st.Limits.MaxWidth != 2000 {
		t.Errorf("limits: %+v", st.Limits)
	}
	if st.Style.Outline == nil || st.Style.Outline.Hex != "#00FF00" {
		t.Errorf("outline colour: %+v", st.Style.Outline)
	}
	if st.Style.Label == nil || st.Style.Label.RGB.R != 255 {
		t.Errorf("label colour: %+v", st.Style.Label)
	}

	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
	st = decode[StatusResponse](t, performRequest(h, http.MethodGet, "/api/status", nil, ""))
	if !st.Ready {
		t.Error("should be ready")
	}
}

func TestSessionLifecycle(t *testing.T) {
	before := vision.LiveHandles()
	_, h := newTestServer(t, &fakeEngine{ready: true, colonies: 3})
	id := createSession(t, h)
	base := "/api/sessions/" + id

	rec := uploadPNG(t, h, id)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status=%d body=%s", rec.Code, rec.Body.String())
	}
	snap := decode[session.Snapshot](t, rec)
	if snap.State != session.StateLoaded || !snap.HasOriginal || !snap.CanProcess {
		t.Errorf("after upload: %+v", snap)
	}

	rec = performRequest(h, http.MethodGet, base+"/original.png", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("original.png: status=%d type=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("original.png does not decode: %v", err)
	}
	if rec := performRequest(h, http.MethodGet, base+"/annotated.png", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("annotated.png before processing: status=%d", rec.Code)
	}

	rec = performRequest(h, http.MethodPost, base+"/process", strings.NewReader(`{"min_area":100,"threshold":127}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("process: status=%d body=%s", rec.Code, rec.Body.String())
	}
	snap = decode[session.Snapshot](t, rec)
	if snap.State != session.StateResult || snap.Count != 3 || snap.Report == nil {
		t.Errorf("after process: %+v", snap)
	}
	if snap.Params != (detection.Params{MinArea: 100, Threshold: 127}) {
		t.Errorf("params: %+v", snap.Params)
	}
	if rec := performRequest(h, http.MethodGet, base+"/annotated.png", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("annotated.png after processing: status=%d", rec.Code)
	}

	rec = performRequest(h, http.MethodPost, base+"/reset", nil, "")
	snap = decode[session.Snapshot](t, rec)
	if snap.State != session.StateIdle || snap.Count != 0 || snap.HasOriginal || snap.HasAnnotated {
		t.Errorf("after reset: %+v", snap)
	}
	for _, name := range []string{"original.png", "annotated.png"} {
		if rec := performRequest(h, http.MethodGet, base+"/"+name, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s after reset: status=%d", name, rec.Code)
		}
	}

	if rec := performRequest(h, http.MethodDelete, base, nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status=%d", rec.Code)
	}
	if rec := performRequest(h, http.MethodGet, base, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status=%d", rec.Code)
	}
	if vision.LiveHandles() != before {
		t.Errorf("live handles: got %d, want %d", vision.LiveHandles(), before)
	}
}

func TestSurface_Base64(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{ready: true})
	id := createSession(t, h)
	uploadPNG(t, h, id)

	rec := performRequest(h, http.MethodGet, "/api/sessions/"+id+"/original.png?format=base64", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	enc := decode[imaging.EncodedImage](t, rec)
	if enc.Width != 16 || enc.Height != 16 || enc.MimeType != "image/png" || enc.ImageBase64 == "" {
		t.Errorf("encoded: %+v", enc)
	}
}

func TestProcess_DefaultsWhenBodyEmpty(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{ready: true, colonies: 1})
	id := createSession(t, h)
	uploadPNG(t, h, id)

	rec := performRequest(h, http.MethodPost, "/api/sessions/"+id+"/process", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	snap := decode[session.Snapshot](t, rec)
	if snap.Params != (detection.Params{MinArea: 50, Threshold: 127}) {
		t.Errorf("params: got %+v, want defaults", snap.Params)
	}
}

func TestUploadErrors(t *testing.T) {
	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), []byte("garbage garbage")...)

	tests := []struct {
		name        string
		field       string
		contentType string
		data        []byte
		maxBytes    int64
		wantStatus  int
		wantKind    string
	}{
		{"text file", "image", "text/plain", []byte("hello"), 0, http.StatusUnsupportedMediaType, session.KindUnsupportedType},
		{"no file field", "", "", nil, 0, http.StatusUnsupportedMediaType, session.KindUnsupportedType},
		{"corrupt png", "image", "image/png", corrupt, 0, http.StatusUnprocessableEntity, session.KindDecode},
		{"too large", "image", "image/png", nil, 16, http.StatusRequestEntityTooLarge, session.KindTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.maxBytes > 0 {
				cfg.MaxUploadBytes = tt.maxBytes
			}
			s := New(cfg, &fakeEngine{ready: true}, log.Discard())
			defer s.Sessions().Close()
			h := s.Handler()
			id := createSession(t, h)

			data := tt.data
			if data == nil && tt.field != "" {
				data = pngBytes(t)
			}
			body, ct := multipartBody(t, tt.field, "upload", tt.contentType, data)
			rec := performRequest(h, http.MethodPost, "/api/sessions/"+id+"/image", body, ct)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decode[errorBody](t, rec).Error; got.Kind != tt.wantKind || got.Message == "" {
				t.Errorf("error body: %+v", got)
			}
		})
	}
}

func TestUploadError_ResetsSession(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{ready: true})
	id := createSession(t, h)
	uploadPNG(t, h, id)

	body, ct := multipartBody(t, "image", "notes.txt", "text/plain", []byte("hello"))
	performRequest(h, http.MethodPost, "/api/sessions/"+id+"/image", body, ct)

	snap := decode[session.Snapshot](t, performRequest(h, http.MethodGet, "/api/sessions/"+id, nil, ""))
	if snap.HasOriginal || snap.State != session.StateError || snap.Error == nil {
		t.Errorf("after rejected upload: %+v", snap)
	}
}

func TestUploadRefusedBeforeLoad_ResetsSession(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		data     []byte
		wantKind string
	}{
		{"no file field", "", nil, session.KindUnsupportedType},
		{"body over the request cap", "image", bytes.Repeat([]byte{0x89}, 2<<20), session.KindTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := vision.LiveHandles()
			cfg := testConfig()
			cfg.MaxUploadBytes = 1024
			s := New(cfg, &fakeEngine{ready: true, colonies: 2}, log.Discard())
			defer s.Sessions().Close()
			h := s.Handler()
			id := createSession(t, h)
			base := "/api/sessions/" + id

			if rec := uploadPNG(t, h, id); rec.Code != http.StatusOK {
				t.Fatalf("upload: status=%d body=%s", rec.Code, rec.Body.String())
			}
			if rec := performRequest(h, http.MethodPost, base+"/process", nil, ""); rec.Code != http.StatusOK {
				t.Fatalf("process: status=%d body=%s", rec.Code, rec.Body.String())
			}

			body, ct := multipartBody(t, tt.field, "dish.png", "image/png", tt.data)
			rec := performRequest(h, http.MethodPost, base+"/image", body, ct)
			if got := decode[errorBody](t, rec).Error; got.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s (status=%d)", got.Kind, tt.wantKind, rec.Code)
			}

			snap := decode[session.Snapshot](t, performRequest(h, http.MethodGet, base, nil, ""))
			if snap.State != session.StateError || snap.HasOriginal || snap.HasAnnotated || snap.Count != 0 {
				t.Errorf("after refused upload: %+v", snap)
			}
			if snap.Error == nil || snap.Error.Kind != tt.wantKind {
				t.Errorf("panel: %+v", snap.Error)
			}
			if vision.LiveHandles() != before {
				t.Errorf("raster not released: live %d, want %d", vision.LiveHandles(), before)
			}
		})
	}
}

func TestProcess_MalformedBodyShowsOnPanel(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{ready: true})
	id := createSession(t, h)
	uploadPNG(t, h, id)

	rec := performRequest(h, http.MethodPost, "/api/sessions/"+id+"/process", strings.NewReader(`{"min_area":`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	snap := decode[session.Snapshot](t, performRequest(h, http.MethodGet, "/api/sessions/"+id, nil, ""))
	if snap.Error == nil || snap.Error.Kind != session.KindInvalidParams {
		t.Errorf("panel: %+v", snap.Error)
	}
	if !snap.HasOriginal {
		t.Error("loaded image must survive a malformed request")
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name       string
		engine     *fakeEngine
		upload     bool
		body       string
		wantStatus int
		wantKind   string
	}{
		{"not ready", &fakeEngine{}, true, `{}`, http.StatusServiceUnavailable, session.KindPipelineNotReady},
		{"no image", &fakeEngine{ready: true}, false, `{}`, http.StatusConflict, session.KindNoImageLoaded},
		{"threshold out of range", &fakeEngine{ready: true}, true, `{"threshold":300}`, http.StatusBadRequest, session.KindInvalidParams},
		{"negative min area", &fakeEngine{ready: true}, true, `{"min_area":-1}`, http.StatusBadRequest, session.KindInvalidParams},
		{"malformed json", &fakeEngine{ready: true}, true, `{"threshold":`, http.StatusBadRequest, session.KindInvalidParams},
		{"wrong type", &fakeEngine{ready: true}, true, `{"threshold":"high"}`, http.StatusBadRequest, session.KindInvalidParams},
		{
			"processing failure",
			&fakeEngine{ready: true, err: &vision.ProcessingError{Op: "threshold", Err: errors.New("cv::Exception")}},
			true, `{}`, http.StatusInternalServerError, session.KindProcessingFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, tt.engine)
			id := createSession(t, h)
			if tt.upload {
				if rec := uploadPNG(t, h, id); rec.Code != http.StatusOK {
					t.Fatalf("upload: status=%d", rec.Code)
				}
			}

			rec := performRequest(h, http.MethodPost, "/api/sessions/"+id+"/process", strings.NewReader(tt.body), "application/json")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decode[errorBody](t, rec).Error; got.Kind != tt.wantKind {
				t.Errorf("kind: got %s, want %s", got.Kind, tt.wantKind)
			}

			if tt.upload {
				if rec := performRequest(h, http.MethodGet, "/api/sessions/"+id+"/original.png", nil, ""); rec.Code != http.StatusOK {
					t.Errorf("original surface lost: status=%d", rec.Code)
				}
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	_, h := newTestServer(t, &fakeEngine{ready: true})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000"},
		{http.MethodPost, "/api/sessions/nope/process"},
		{http.MethodPost, "/api/sessions/nope/reset"},
		{http.MethodDelete, "/api/sessions/nope"},
		{http.MethodGet, "/api/sessions/nope/original.png"},
	}
	for _, p := range paths {
		rec := performRequest(h, p.method, p.path, nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status=%d", p.method, p.path, rec.Code)
			continue
		}
		if got := decode[errorBody](t, rec).Error; got.Kind != session.KindNotFound {
			t.Errorf("%s %s: kind=%s", p.method, p.path, got.Kind)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		session.KindUnsupportedType:   415,
		session.KindTooLarge:          413,
		session.KindDecode:            422,
		session.KindPipelineNotReady:  503,
		session.KindNoImageLoaded:     409,
		session.KindBusy:              409,
		session.KindInvalidParams:     400,
		session.KindProcessingFailure: 500,
		session.KindNotFound:          404,
		session.KindInternal:          500,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s): got %d, want %d", kind, got, want)
		}
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Listen = "127.0.0.1:0"
	s := New(cfg, &fakeEngine{}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
