package tracker

// stateDim is the 8-state constant-velocity model: [cx, cy, w, h, vcx,
// vcy, vw, vh].
const stateDim = 8

// measureDim is the observed subset of state: [cx, cy, w, h].
const measureDim = 4

// kalmanFilter is a linear Kalman filter specialized to the tracker's
// constant-velocity box model. Q and R are isotropic rather than tuned per-axis, which keeps
// the filter's behavior easy to reason about across very different box
// sizes.
type kalmanFilter struct {
	x matrix // stateDim x 1
	p matrix // stateDim x stateDim

	f matrix // state transition
	h matrix // measurement projection
	q matrix // process noise
	r matrix // measurement noise
}

func newKalmanFilter(cx, cy, w, h float64) *kalmanFilter {
	x := newMatrix(stateDim, 1)
	x.set(0, 0, cx)
	x.set(1, 0, cy)
	x.set(2, 0, w)
	x.set(3, 0, h)

	f := identity(stateDim)
	f.set(0, 4, 1)
	f.set(1, 5, 1)
	f.set(2, 6, 1)
	f.set(3, 7, 1)

	hm := newMatrix(measureDim, stateDim)
	for i := 0; i < measureDim; i++ {
		hm.set(i, i, 1)
	}

	return &kalmanFilter{
		x: x,
		p: identity(stateDim),
		f: f,
		h: hm,
		q: identity(stateDim).scale(1e-2),
		r: identity(measureDim).scale(1e-1),
	}
}

// predict advances the state one frame and returns the predicted
// [cx,cy,w,h] for association against this frame's detections.
func (k *kalmanFilter) predict() (cx, cy, w, h float64) {
	k.x = k.f.mul(k.x)
	k.p = k.f.mul(k.p).mul(k.f.transpose()).add(k.q)
	return k.x.at(0, 0), k.x.at(1, 0), k.x.at(2, 0), k.x.at(3, 0)
}

// correct folds a matched measurement [cx,cy,w,h] into the state.
func (k *kalmanFilter) correct(cx, cy, w, h float64) {
	z := newMatrix(measureDim, 1)
	z.set(0, 0, cx)
	z.set(1, 0, cy)
	z.set(2, 0, w)
	z.set(3, 0, h)

	hx := k.h.mul(k.x)
	y := z.sub(hx)

	ht := k.h.transpose()
	s := k.h.mul(k.p).mul(ht).add(k.r)
	kg := k.p.mul(ht).mul(s.inverse())

	k.x = k.x.add(kg.mul(y))

	ikh := identity(stateDim).sub(kg.mul(k.h))
	k.p = ikh.mul(k.p)
}

// state returns the current box estimate without advancing the filter.
func (k *kalmanFilter) state() (cx, cy, w, h float64) {
	return k.x.at(0, 0), k.x.at(1, 0), k.x.at(2, 0), k.x.at(3, 0)
}

// velocity returns the current velocity estimate, used for extrapolating
// a lost track's position during gated re-association.
func (k *kalmanFilter) velocity() (vcx, vcy, vw, vh float64) {
	return k.x.at(4, 0), k.x.at(5, 0), k.x.at(6, 0), k.x.at(7, 0)
}
