package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/skyatlas/hipscache/internal/model"
)

func parseVia(t *testing.T, path string) (model.TileRef, error, int) {
	t.Helper()
	var ref model.TileRef
	var err error
	r := chi.NewRouter()
	r.Get("/tiles/{survey}/{order}/{pix}", func(w http.ResponseWriter, req *http.Request) {
		ref, err = ParseTileRequest(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return ref, err, rec.Code
}

func TestParseTileRequest(t *testing.T) {
	ref, err, code := parseVia(t, "/tiles/0a1b2c3d/3/767")
	if err != nil || code != http.StatusOK {
		t.Fatalf("err=%v code=%d", err, code)
	}
	want := model.TileRef{Survey: "0a1b2c3d", Order: 3, Pix: 767}
	if ref != want {
		t.Fatalf("ref=%+v want %+v", ref, want)
	}
}

func TestParseTileRequest_Rejects(t *testing.T) {
	cases := []struct {
		name, path, wantErr string
	}{
		{"order not a number", "/tiles/s/x/0", "invalid order"},
		{"order too deep", "/tiles/s/30/0", "order must be in"},
		{"pix not a number", "/tiles/s/0/x", "invalid pix"},
		{"pix out of range", "/tiles/s/0/12", "pix must be in"},
		{"pix negative", "/tiles/s/1/-1", "pix must be in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err, code := parseVia(t, tc.path)
			if err == nil || code != http.StatusBadRequest {
				t.Fatalf("err=%v code=%d", err, code)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%q want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseTileRequest_PixBoundary(t *testing.T) {
	// order 2 has 192 pixels
	if _, err, _ := parseVia(t, "/tiles/s/2/191"); err != nil {
		t.Fatalf("pix 191 at order 2: %v", err)
	}
	if _, err, _ := parseVia(t, "/tiles/s/2/192"); err == nil {
		t.Fatalf("pix 192 at order 2 must be rejected")
	}
}

func TestTileRefString(t *testing.T) {
	ref := model.TileRef{Survey: "s1", Order: 4, Pix: 17}
	if got := ref.String(); got != "s1/4/17" {
		t.Fatalf("got %q", got)
	}
}
