// Package geom holds the small amount of planar math the tile engine
// needs: 3x3 affine matrices for UV remapping and the child-quadrant
// transform of the sphere quad-tree.
package geom

// Mat3 is a 3x3 matrix in column-major order, used as a 2D affine
// transform over homogeneous UV coordinates.
type Mat3 [3][3]float64

func Identity() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m[0][j]*o[i][0] + m[1][j]*o[i][1] + m[2][j]*o[i][2]
		}
	}
	return out
}

// MulVec2 applies the affine transform to a 2D point.
func (m Mat3) MulVec2(x, y float64) (float64, float64) {
	return m[0][0]*x + m[1][0]*y + m[2][0],
		m[0][1]*x + m[1][1]*y + m[2][1]
}

func (m Mat3) scaled(sx, sy float64) Mat3 {
	s := Mat3{{sx, 0, 0}, {0, sy, 0}, {0, 0, 1}}
	return m.Mul(s)
}

func (m Mat3) translated(tx, ty float64) Mat3 {
	t := Mat3{{1, 0, 0}, {0, 1, 0}, {tx, ty, 1}}
	return m.Mul(t)
}

// ChildUVMat multiplies m by the transform that maps a tile's UV square
// onto the sub-square occupied by its i-th child (i in [0,3]). The child
// index bits encode the sub-quadrant: x = i/2, y = i%2.
//
// Calling it repeatedly composes a chain of tiles starting from the
// deepest one, each call adding the next ancestor level. E.g. the
// transform from a tile to the grandchild reached through its child 1
// and then that child's child 0 is
//
//	m := geom.Identity()
//	m = geom.ChildUVMat(0, m)
//	m = geom.ChildUVMat(1, m)
func ChildUVMat(i int, m Mat3) Mat3 {
	tmp := Identity().scaled(0.5, 0.5).translated(float64(i/2), float64(i%2))
	return tmp.Mul(m)
}
