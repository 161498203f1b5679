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

// Collapses the list into one plane holding the per-pixel median of all
// accepted values, defined as the element at sorted index k/2 for k accepted
// values (the upper of the two middle values for even k). Complex kinds are
// rejected. Pixels with zero contributors are rejected in the output mask.
//
// Two execution strategies produce bit-identical results: a pixel-at-a-time
// gather for small working sets, and a plane-major cache-tiled traversal for
// stacks larger than TileBytes. Both feed the same values in the same order
// to the same selection, so equality holds exactly, not approximately
func (e *Engine) Median(l *plane.List) (plane.Plane, error) {
	width, height, kind, err:=e.validate(l, true)
	if err!=nil { return nil, err }

	switch kind {
	case plane.Int32:
		ps, ok:=plane.AsTyped[int32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return medianReal(e, ps), nil
	case plane.Float32:
		ps, ok:=plane.AsTyped[float32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return medianReal(e, ps), nil
	case plane.Float64:
		ps, ok:=plane.AsTyped[float64](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return medianReal(e, ps), nil
	}
	return nil, fmt.Errorf("%w: %s at %dx%d", ErrInvalidType, kind, width, height)
}

func medianReal[T plane.Real](e *Engine, ps []*plane.Typed[T]) *plane.Typed[T] {
	out:=plane.New[T](ps[0].Width, ps[0].Height)
	outMask:=plane.NewMask(ps[0].Width, ps[0].Height)
	masks:=masksOf(ps)
	elemBytes:=out.Kind().Bytes()

	strategy:=e.MedianStrategy
	if strategy==MedianAuto {
		workingSet:=len(ps)*out.Pixels()*elemBytes
		if workingSet>e.TileBytes {
			strategy=MedianTiled
		} else {
			strategy=MedianRows
		}
	}
	e.logf("Collapsing %d planes of %dx%d %s with %s median\n",
		len(ps), out.Width, out.Height, out.Kind(), strategy)

	switch strategy {
	case MedianRows:
		e.forEachBatch(out.Pixels(), len(ps)*elemBytes, func(lower, upper int) {
			medianRows(ps, masks, out, outMask, lower, upper)
		})
	default:
		tile:=e.TileBytes/(len(ps)*elemBytes)
		if tile<1 { tile=1 }
		e.forEachBatch(out.Pixels(), len(ps)*elemBytes, func(lower, upper int) {
			medianTiled(ps, masks, out, outMask, lower, upper, tile)
		})
	}

	out.SetMask(outMask)
	return out
}

// Pixel-at-a-time median: iterate pixel positions outer, planes inner.
// Trashes cache for large stacks, optimal for small ones
func medianRows[T plane.Real](ps []*plane.Typed[T], masks []*plane.Mask,
	out *plane.Typed[T], outMask *plane.Mask, lower, upper int) {
	gatheredFull:=make([]T, len(ps))

	for i:=lower; i<upper; i++ {
		// gather accepted values for this pixel across all planes
		numGathered:=0
		for li, p:=range ps {
			if masks[li]!=nil && masks[li].Rejected[i] { continue }
			gatheredFull[numGathered]=p.Data[i]
			numGathered++
		}
		if numGathered==0 {
			outMask.Rejected[i]=true
			continue
		}
		out.Data[i]=qsel.Median(gatheredFull[:numGathered])
	}
}

// Cache-tiled median: process pixel positions in blocks sized to fit the
// cache, copying each block plane-major so every plane is scanned
// contiguously. The per-pixel gather then reads the hot tile buffer instead
// of striding across N large planes. Values reach the selection in the same
// plane order as medianRows, so results are bit-identical
func medianTiled[T plane.Real](ps []*plane.Typed[T], masks []*plane.Mask,
	out *plane.Typed[T], outMask *plane.Mask, lower, upper, tile int) {
	buf:=make([]T, tile*len(ps))
	gatheredFull:=make([]T, len(ps))

	for blockLower:=lower; blockLower<upper; blockLower+=tile {
		blockUpper:=blockLower+tile
		if blockUpper>upper { blockUpper=upper }
		n:=blockUpper-blockLower

		for li, p:=range ps {
			copy(buf[li*n:(li+1)*n], p.Data[blockLower:blockUpper])
		}

		for j:=0; j<n; j++ {
			i:=blockLower+j
			numGathered:=0
			for li:=range ps {
				if masks[li]!=nil && masks[li].Rejected[i] { continue }
				gatheredFull[numGathered]=buf[li*n+j]
				numGathered++
			}
			if numGathered==0 {
				outMask.Rejected[i]=true
				continue
			}
			out.Data[i]=qsel.Median(gatheredFull[:numGathered])
		}
	}
}
