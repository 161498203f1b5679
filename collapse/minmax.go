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
	"github.com/mlnoga/planestack/qsel"
)

// Collapses the list into one plane holding, per pixel, the average of the
// accepted values after discarding the nLow smallest and nHigh largest of
// them. nLow and nHigh are plane counts applied at every pixel position.
// A pixel whose accepted count does not exceed nLow+nHigh is rejected in
// the output mask. Complex kinds are rejected
func (e *Engine) MinMax(l *plane.List, nLow, nHigh int) (plane.Plane, error) {
	if l==nil {
		return nil, fmt.Errorf("%w: plane list is nil", ErrNullInput)
	}
	if nLow<0 || nHigh<0 {
		return nil, fmt.Errorf("%w: negative trim counts %d/%d", ErrIllegalInput, nLow, nHigh)
	}
	width, height, kind, err:=e.validate(l, true)
	if err!=nil { return nil, err }
	e.logf("Collapsing %d planes of %dx%d %s with min-max trim %d/%d\n",
		l.Len(), width, height, kind, nLow, nHigh)

	switch kind {
	case plane.Int32:
		ps, ok:=plane.AsTyped[int32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return minMaxReal(e, ps, nLow, nHigh), nil
	case plane.Float32:
		ps, ok:=plane.AsTyped[float32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return minMaxReal(e, ps, nLow, nHigh), nil
	case plane.Float64:
		ps, ok:=plane.AsTyped[float64](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return minMaxReal(e, ps, nLow, nHigh), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidType, kind)
}

func minMaxReal[T plane.Real](e *Engine, ps []*plane.Typed[T], nLow, nHigh int) *plane.Typed[T] {
	out:=plane.New[T](ps[0].Width, ps[0].Height)
	outMask:=plane.NewMask(ps[0].Width, ps[0].Height)
	masks:=masksOf(ps)

	e.forEachBatch(out.Pixels(), len(ps)*out.Kind().Bytes(), func(lower, upper int) {
		gatheredFull:=make([]T, len(ps))

		// for all pixels in the batch
		for i:=lower; i<upper; i++ {

			// gather accepted values for this pixel across all planes
			numGathered:=0
			for li, p:=range ps {
				if masks[li]!=nil && masks[li].Rejected[i] { continue }
				gatheredFull[numGathered]=p.Data[i]
				numGathered++
			}
			if numGathered==0 || nLow+nHigh>=numGathered {
				// trimming consumes all accepted values
				outMask.Rejected[i]=true
				continue
			}
			gatheredCur:=gatheredFull[:numGathered]
			qsel.Sort(gatheredCur)

			sum:=float64(0)
			for _, g:=range gatheredCur[nLow : numGathered-nHigh] {
				sum+=float64(g)
			}
			out.Data[i]=fromFloat64[T](sum/float64(numGathered-nLow-nHigh))
		}
	})

	out.SetMask(outMask)
	return out
}
