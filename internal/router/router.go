package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyatlas/hipscache/internal/model"
)

// maxOrder bounds the accepted tile order; beyond 29 the pixel index
// no longer fits an int64 and no real survey goes that deep.
const maxOrder = 29

// validates user input for /tiles/{survey}/{order}/{pix} and returns a
// normalized tile reference
func ParseTileRequest(r *http.Request) (model.TileRef, error) {
	id := chi.URLParam(r, "survey")
	if id == "" {
		return model.TileRef{}, errors.New("missing survey id")
	}

	order, err := strconv.Atoi(chi.URLParam(r, "order"))
	if err != nil {
		return model.TileRef{}, fmt.Errorf("invalid order: %w", err)
	}
	if order < 0 || order > maxOrder {
		return model.TileRef{}, fmt.Errorf("order must be in [0,%d]", maxOrder)
	}

	pix, err := strconv.Atoi(chi.URLParam(r, "pix"))
	if err != nil {
		return model.TileRef{}, fmt.Errorf("invalid pix: %w", err)
	}
	if npix := 12 << (2 * order); pix < 0 || pix >= npix {
		return model.TileRef{}, fmt.Errorf("pix must be in [0,%d) at order %d", npix, order)
	}

	return model.TileRef{Survey: id, Order: order, Pix: pix}, nil
}
