package geom

// Projector carries the parameters the renderer needs to set up a
// HEALPix projection for one tile. The actual spherical math lives in
// the renderer; the engine only decides which tile the projection
// covers.
type Projector struct {
	NSide   int
	Pix     int
	Swapped bool
	// Outside is true when viewing the sphere from outside (the
	// default sky case), false for planet-style inside viewing.
	Outside bool
}

// HealpixProjector returns the projector for tile (order, pix).
func HealpixProjector(order, pix int, outside bool) Projector {
	return Projector{NSide: 1 << order, Pix: pix, Swapped: true, Outside: outside}
}
