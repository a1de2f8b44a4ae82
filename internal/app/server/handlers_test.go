package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/engine"
	"github.com/skyatlas/hipscache/internal/executor"
	"github.com/skyatlas/hipscache/internal/health"
	"github.com/skyatlas/hipscache/internal/model"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
)

const propsDoc = `hips_order = 5
hips_order_min = 3
hips_tile_format = png
obs_collection = Test Sky
`

func opaquePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// newTestStack wires fetcher, engine and executor against a fake
// upstream and serves the API routes from an httptest server.
func newTestStack(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/s1/properties", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(propsDoc))
	})
	mux.HandleFunc("/s1/Norder3/Dir0/Npix0.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(opaquePNG(t, 8, 8))
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	zl := zerolog.New(io.Discard)
	f := asset.NewHTTP(log, 64, time.Minute)
	eng := engine.New(log, f, engine.WithUploader(tile.MemUploader{}))
	exec := executor.New(log, eng, time.Millisecond)
	id := exec.AddSurvey(survey.New(log, upstream.URL+"/s1", 0))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = exec.Run(ctx) }()

	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(exec.Ready))
	r.Get("/surveys", listSurveys(exec))
	r.Get("/tiles/{survey}/{order}/{pix}", serveTile(&zl, exec))
	api := httptest.NewServer(r)
	t.Cleanup(api.Close)
	return api, id
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// pollStatus re-requests until the response settles on want.
func pollStatus(t *testing.T, url string, want int) *http.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := get(t, url)
		if resp.StatusCode == want {
			return resp
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status %d want %d or 202", resp.StatusCode, want)
		}
		if time.Now().After(deadline) {
			t.Fatalf("never settled on %d", want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	api, _ := newTestStack(t)
	if resp := get(t, api.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := get(t, api.URL+"/readyz")
		if resp.StatusCode == http.StatusOK {
			break
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("readyz: %d", resp.StatusCode)
		}
		if time.Now().After(deadline) {
			t.Fatalf("never became ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestListSurveys(t *testing.T) {
	api, id := newTestStack(t)
	// the label comes from the properties file, fetched asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for get(t, api.URL+"/readyz").StatusCode != http.StatusOK {
		if time.Now().After(deadline) {
			t.Fatalf("never became ready")
		}
		time.Sleep(time.Millisecond)
	}
	resp := get(t, api.URL+"/surveys")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("surveys: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var infos []model.SurveyInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != id {
		t.Fatalf("infos: %+v", infos)
	}
	if infos[0].Label != "Test Sky" || infos[0].Frame != "icrf" {
		t.Fatalf("infos: %+v", infos)
	}
}

func TestServeTile(t *testing.T) {
	api, id := newTestStack(t)
	resp := pollStatus(t, api.URL+"/tiles/"+id+"/3/0", http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	if resp.Header.Get("X-Tile-Complete") != "true" {
		t.Fatalf("tile must be complete")
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Fatalf("tile %dx%d want 8x8", b.Dx(), b.Dy())
	}
}

func TestServeTile_Missing(t *testing.T) {
	api, id := newTestStack(t)
	// pix 1 is a definitive upstream 404
	pollStatus(t, api.URL+"/tiles/"+id+"/3/1", http.StatusNotFound)
}

func TestServeTile_BadRequest(t *testing.T) {
	api, id := newTestStack(t)
	if resp := get(t, api.URL+"/tiles/"+id+"/99/0"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d want 400", resp.StatusCode)
	}
	if resp := get(t, api.URL+"/tiles/"+id+"/3/99999"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d want 400", resp.StatusCode)
	}
}

func TestServeTile_UnknownSurvey(t *testing.T) {
	api, _ := newTestStack(t)
	if resp := get(t, api.URL+"/tiles/deadbeef/3/0"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d want 404", resp.StatusCode)
	}
}
