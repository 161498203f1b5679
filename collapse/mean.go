// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package collapse

import (
	"fmt"
	"github.com/mlnoga/planestack/plane"
)

// Collapses the list into one plane holding the per-pixel average of all
// accepted values. The only mode supporting complex element kinds.
// Pixels with zero contributors are rejected in the output mask
func (e *Engine) Mean(l *plane.List) (plane.Plane, error) {
	return e.MeanWithContrib(l, nil)
}

// Like Mean, additionally filling the caller-allocated contribution map
// with the per-pixel count of accepted values. A nil contrib skips the map
func (e *Engine) MeanWithContrib(l *plane.List, contrib *plane.Typed[int32]) (plane.Plane, error) {
	width, height, kind, err:=e.validate(l, false)
	if err!=nil { return nil, err }
	if err:=checkContrib(contrib, width, height); err!=nil { return nil, err }
	e.logf("Collapsing %d planes of %dx%d %s with mean\n", l.Len(), width, height, kind)

	switch kind {
	case plane.Int32:
		ps, ok:=plane.AsTyped[int32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return meanReal(e, ps, contrib), nil
	case plane.Float32:
		ps, ok:=plane.AsTyped[float32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return meanReal(e, ps, contrib), nil
	case plane.Float64:
		ps, ok:=plane.AsTyped[float64](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return meanReal(e, ps, contrib), nil
	case plane.Complex64:
		ps, ok:=plane.AsTyped[complex64](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return meanComplex(e, ps, contrib), nil
	case plane.Complex128:
		ps, ok:=plane.AsTyped[complex128](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return meanComplex(e, ps, contrib), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidType, kind)
}

func meanReal[T plane.Real](e *Engine, ps []*plane.Typed[T], contrib *plane.Typed[int32]) *plane.Typed[T] {
	out:=plane.New[T](ps[0].Width, ps[0].Height)
	outMask:=plane.NewMask(ps[0].Width, ps[0].Height)
	masks:=masksOf(ps)

	e.forEachBatch(out.Pixels(), len(ps)*out.Kind().Bytes(), func(lower, upper int) {
		// for all pixels in the batch
		for i:=lower; i<upper; i++ {

			// accumulate accepted values for this pixel across all planes
			num:=0
			sum:=float64(0)
			for li, p:=range ps {
				if masks[li]!=nil && masks[li].Rejected[i] { continue }
				sum+=float64(p.Data[i])
				num++
			}
			if num==0 {
				outMask.Rejected[i]=true
				if contrib!=nil { contrib.Data[i]=0 }
				continue
			}
			out.Data[i]=fromFloat64[T](sum/float64(num))
			if contrib!=nil { contrib.Data[i]=int32(num) }
		}
	})

	out.SetMask(outMask)
	return out
}

func meanComplex[T plane.Complex](e *Engine, ps []*plane.Typed[T], contrib *plane.Typed[int32]) *plane.Typed[T] {
	out:=plane.New[T](ps[0].Width, ps[0].Height)
	outMask:=plane.NewMask(ps[0].Width, ps[0].Height)
	masks:=masksOf(ps)

	e.forEachBatch(out.Pixels(), len(ps)*out.Kind().Bytes(), func(lower, upper int) {
		for i:=lower; i<upper; i++ {
			num:=0
			sum:=complex128(0)
			for li, p:=range ps {
				if masks[li]!=nil && masks[li].Rejected[i] { continue }
				sum+=complex128(p.Data[i])
				num++
			}
			if num==0 {
				outMask.Rejected[i]=true
				if contrib!=nil { contrib.Data[i]=0 }
				continue
			}
			out.Data[i]=T(sum/complex(float64(num), 0))
			if contrib!=nil { contrib.Data[i]=int32(num) }
		}
	})

	out.SetMask(outMask)
	return out
}
