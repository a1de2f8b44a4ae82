package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/skyatlas/hipscache/internal/engine"
	"github.com/skyatlas/hipscache/internal/executor"
	"github.com/skyatlas/hipscache/internal/logger"
	"github.com/skyatlas/hipscache/internal/model"
	"github.com/skyatlas/hipscache/internal/router"
	"github.com/skyatlas/hipscache/internal/tile"
)

func listSurveys(exec *executor.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var infos []model.SurveyInfo
		if err := exec.Do(r.Context(), func() { infos = exec.Infos() }); err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(infos)
	}
}

// serveTile answers with the best texture available right now:
// 200 with a PNG body (an ancestor substitute when the exact tile is
// still loading; all-sky pseudo tiles only with ?allsky=1), 404 when
// the tile definitively does not exist, 202 while nothing at all is
// resident yet.
func serveTile(zl *zerolog.Logger, exec *executor.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := router.ParseTileRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s, ok := exec.Survey(ref.Survey)
		if !ok {
			http.Error(w, "unknown survey", http.StatusNotFound)
			return
		}
		ctx := logger.WithSurvey(r.Context(), ref.Survey)

		flags := engine.LoadInThread
		if r.URL.Query().Get("allsky") == "1" {
			flags |= engine.ForceUseAllsky
		}
		var res engine.Result
		if err := exec.Do(ctx, func() {
			res = exec.Engine().GetTileTexture(s, ref.Order, ref.Pix, flags)
		}); err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		switch {
		case res.Texture != nil:
			writeTile(w, logger.FromContext(ctx, zl), ref, res)
		case res.LoadingComplete:
			http.Error(w, "tile not available", http.StatusNotFound)
		default:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusAccepted)
		}
	}
}

func writeTile(w http.ResponseWriter, zl *zerolog.Logger, ref model.TileRef, res engine.Result) {
	mt, ok := res.Texture.(*tile.MemTexture)
	if !ok {
		http.Error(w, "texture not exportable", http.StatusInternalServerError)
		return
	}
	img, err := textureImage(mt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Tile-Complete", strconv.FormatBool(res.LoadingComplete))
	w.Header().Set("X-Tile-UV", formatUV(res.UV))
	if res.LoadingComplete {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	} else {
		// a substitute: the client should re-request
		w.Header().Set("Cache-Control", "no-store")
	}
	if err := png.Encode(w, img); err != nil {
		zl.Warn().Str("tile", ref.String()).Err(err).Msg("encode tile response")
	}
}

func textureImage(mt *tile.MemTexture) (image.Image, error) {
	if mt.Bpp != 4 {
		return nil, fmt.Errorf("unsupported pixel layout: %d bytes per pixel", mt.Bpp)
	}
	return &image.NRGBA{
		Pix:    mt.Pix,
		Stride: mt.W * 4,
		Rect:   image.Rect(0, 0, mt.W, mt.H),
	}, nil
}

// formatUV renders the four corner coordinates that map the requested
// tile into the returned texture, so clients can crop a substituted
// ancestor themselves.
func formatUV(uv [4][2]float64) string {
	return fmt.Sprintf("%g,%g %g,%g %g,%g %g,%g",
		uv[0][0], uv[0][1], uv[1][0], uv[1][1],
		uv[2][0], uv[2][1], uv[3][0], uv[3][1])
}
