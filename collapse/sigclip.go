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
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"github.com/mlnoga/planestack/plane"
	"github.com/mlnoga/planestack/qsel"
	"github.com/mlnoga/planestack/stats"
)

// Center estimator for the per-iteration clip bounds
type CenterMode int

const (
	CenterMean       CenterMode = iota // mean center, sample standard deviation spread
	CenterMedian                       // median center, standard deviation about the median
	CenterMedianMean                   // median center while clipping, mean of the converged set as result
)

func (m CenterMode) String() string {
	switch m {
	case CenterMean:       return "mean"
	case CenterMedian:     return "median"
	case CenterMedianMean: return "medianMean"
	}
	return fmt.Sprintf("center(%d)", int(m))
}

// Parameters for the kappa-sigma clipping collapse
type SigClipOpts struct {
	KLow     float32    `json:"kLow"`     // clip threshold below center, in spread multiples, >0
	KHigh    float32    `json:"kHigh"`    // clip threshold above center, in spread multiples, >0
	KeepFrac float32    `json:"keepFrac"` // minimum surviving fraction of the total stack size, in (0,1]
	Center   CenterMode `json:"center"`
}

func NewSigClipOptsDefault() SigClipOpts {
	return SigClipOpts{KLow: 3, KHigh: 3, KeepFrac: 0.5, Center: CenterMean}
}

// Unmarshal the type from JSON with default values for missing entries
func (o *SigClipOpts) UnmarshalJSON(data []byte) error {
	type defaults SigClipOpts
	def:=defaults(NewSigClipOptsDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*o=SigClipOpts(def)
	return nil
}

// Collapses the list into one plane by iterative kappa-sigma clipping.
// Per pixel position, independently: estimate center and spread of the
// currently accepted values, reject values outside
// [center-KLow*spread, center+KHigh*spread], and repeat until no value is
// rejected. An iteration that would leave fewer than ceil(KeepFrac*N)
// values, with N the total list length, is discarded in its entirety.
// The output value is the mean of the converged accepted set.
//
// The optional caller-allocated contrib map receives the per-pixel count of
// values surviving the clip. Complex kinds are rejected
func (e *Engine) SigClip(l *plane.List, opts SigClipOpts, contrib *plane.Typed[int32]) (plane.Plane, error) {
	if l==nil {
		return nil, fmt.Errorf("%w: plane list is nil", ErrNullInput)
	}
	if opts.KLow<=0 || opts.KHigh<=0 {
		return nil, fmt.Errorf("%w: clip thresholds %g/%g must be positive",
			ErrIllegalInput, opts.KLow, opts.KHigh)
	}
	if opts.KeepFrac<=0 || opts.KeepFrac>1 {
		return nil, fmt.Errorf("%w: keep fraction %g outside (0,1]",
			ErrAccessOutOfRange, opts.KeepFrac)
	}
	if opts.Center<CenterMean || opts.Center>CenterMedianMean {
		return nil, fmt.Errorf("%w: center mode %d", ErrUnsupportedMode, opts.Center)
	}
	width, height, kind, err:=e.validate(l, true)
	if err!=nil { return nil, err }
	if err:=checkContrib(contrib, width, height); err!=nil { return nil, err }
	e.logf("Collapsing %d planes of %dx%d %s with %s sigma clipping low %g high %g keep %g:\n",
		l.Len(), width, height, kind, opts.Center, opts.KLow, opts.KHigh, opts.KeepFrac)

	switch kind {
	case plane.Int32:
		ps, ok:=plane.AsTyped[int32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return sigClipReal(e, ps, opts, contrib), nil
	case plane.Float32:
		ps, ok:=plane.AsTyped[float32](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return sigClipReal(e, ps, opts, contrib), nil
	case plane.Float64:
		ps, ok:=plane.AsTyped[float64](l)
		if !ok { return nil, fmt.Errorf("%w: mixed plane implementations", ErrInvalidType) }
		return sigClipReal(e, ps, opts, contrib), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidType, kind)
}

func sigClipReal[T plane.Real](e *Engine, ps []*plane.Typed[T], opts SigClipOpts, contrib *plane.Typed[int32]) *plane.Typed[T] {
	out:=plane.New[T](ps[0].Width, ps[0].Height)
	outMask:=plane.NewMask(ps[0].Width, ps[0].Height)
	masks:=masksOf(ps)

	// keep floor is evaluated against the total list length, not the
	// per-pixel accepted count
	minKeep:=int(math.Ceil(float64(opts.KeepFrac)*float64(len(ps))))
	if minKeep<1 { minKeep=1 }
	kLow, kHigh:=float64(opts.KLow), float64(opts.KHigh)

	numClippedLock, numClippedLow, numClippedHigh:=sync.Mutex{}, int64(0), int64(0)

	e.forEachBatch(out.Pixels(), len(ps)*out.Kind().Bytes(), func(lower, upper int) {
		gatheredFull:=make([]T, len(ps))
		clipLow, clipHigh:=int64(0), int64(0)

		// for all pixels in the batch
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
				if contrib!=nil { contrib.Data[i]=0 }
				continue
			}
			gatheredCur:=gatheredFull[:numGathered]

			// repeat until results for this pixel are stable. A single
			// value has no defined spread and is returned as-is
			for len(gatheredCur)>1 {
				center, spread:=centerSpread(gatheredCur, opts.Center)

				lowBound :=center - kLow *spread
				highBound:=center + kHigh*spread

				// count the values this iteration would remove
				newlyRejected:=0
				for _, g:=range gatheredCur {
					v:=float64(g)
					if v<lowBound || v>highBound { newlyRejected++ }
				}

				// terminate if stable, or if applying the clip would fall
				// below the keep floor; such a clip is never partially applied
				if newlyRejected==0 || len(gatheredCur)-newlyRejected<minKeep {
					break
				}

				// remove out-of-bounds values
				for j:=0; j<len(gatheredCur); j++ {
					v:=float64(gatheredCur[j])
					if v<lowBound {
						gatheredCur[j]=gatheredCur[len(gatheredCur)-1]
						gatheredCur=gatheredCur[:len(gatheredCur)-1]
						clipLow++
						j--
					} else if v>highBound {
						gatheredCur[j]=gatheredCur[len(gatheredCur)-1]
						gatheredCur=gatheredCur[:len(gatheredCur)-1]
						clipHigh++
						j--
					}
				}
			}

			out.Data[i]=fromFloat64[T](stats.Mean(gatheredCur))
			if contrib!=nil { contrib.Data[i]=int32(len(gatheredCur)) }
		}

		// update clipping totals
		if clipLow>0 || clipHigh>0 {
			numClippedLock.Lock()
			numClippedLow+=clipLow
			numClippedHigh+=clipHigh
			numClippedLock.Unlock()
		}
	})

	// report back on clipping
	total:=float64(out.Pixels())*float64(len(ps))
	e.logf("Clipped low %d (%.2f%%) high %d (%.2f%%)\n",
		numClippedLow,  float64(numClippedLow )*100.0/total,
		numClippedHigh, float64(numClippedHigh)*100.0/total)

	out.SetMask(outMask)
	return out
}

// Estimates the clip center and spread of the currently accepted values.
// Mean mode pairs the mean with the unbiased sample standard deviation;
// both median modes clip about the median, with the standard deviation
// taken about that median. May partially reorder the values
func centerSpread[T plane.Real](gatheredCur []T, mode CenterMode) (center, spread float64) {
	switch mode {
	case CenterMean:
		center=stats.Mean(gatheredCur)
	default:
		center=float64(qsel.Median(gatheredCur))
	}
	return center, stats.StdDevAbout(gatheredCur, center)
}
