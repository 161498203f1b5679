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


// Package collapse reduces an ordered list of same-shape pixel planes into
// one plane, computed per pixel from the accepted input values at that
// position. Four reduction modes are provided: mean, median, min-max trimmed
// mean, and iterative kappa-sigma clipping. All modes propagate per-pixel
// rejection masks: an output pixel is rejected iff no input contributed.
package collapse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/planestack/plane"
)

// Error kinds reported by the collapse operations. Call sites wrap these
// with context, compare with errors.Is
var (
	ErrNullInput        = errors.New("null input")
	ErrDataNotFound     = errors.New("data not found")
	ErrIllegalInput     = errors.New("illegal input")
	ErrAccessOutOfRange = errors.New("access out of range")
	ErrInvalidType      = errors.New("invalid type")
	ErrUnsupportedMode  = errors.New("unsupported mode")
)

// Execution strategy for the median collapse
type MedianStrategy int

const (
	MedianAuto  MedianStrategy = iota // select by working-set size vs TileBytes
	MedianRows                        // pixel-at-a-time gather
	MedianTiled                       // plane-major cache-tiled gather
)

func (s MedianStrategy) String() string {
	switch s {
	case MedianAuto:  return "auto"
	case MedianRows:  return "rows"
	case MedianTiled: return "tiled"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// A collapse engine with explicit configuration. The zero value is not
// usable, create with NewEngine
type Engine struct {
	TileBytes      int            `json:"tileBytes"`  // cache working-set cutover for the tiled median path
	MaxThreads     int            `json:"maxThreads"` // parallelism limit for pixel-range batches
	MemoryMB       int            `json:"-"`          // total system memory, for sizing scratch buffers
	MedianStrategy MedianStrategy `json:"-"`          // override for equivalence testing, normally MedianAuto
	Log            io.Writer      `json:"-"`          // optional progress and clip reporting, nil disables
}

// Creates an engine with defaults derived from the hardware: tile size from
// the detected L2 cache, parallelism from the number of usable CPUs
func NewEngine() *Engine {
	tileBytes:=cpuid.CPU.Cache.L2
	if tileBytes<=0 { tileBytes=256*1024 }
	return &Engine{
		TileBytes:  tileBytes,
		MaxThreads: runtime.GOMAXPROCS(0),
		MemoryMB:   int(memory.TotalMemory()/1024/1024),
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (e *Engine) UnmarshalJSON(data []byte) error {
	type defaults Engine
	def:=defaults(*NewEngine())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*e=Engine(def)
	return nil
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log!=nil { fmt.Fprintf(e.Log, format, args...) }
}


// Shared entry check for all collapse operations: the list must be non-nil
// and non-empty, all planes must share the same dimensions and element kind,
// and ordering-dependent reductions reject complex kinds. Performed before
// any output is allocated, so a failed call never yields partial results
func (e *Engine) validate(l *plane.List, needOrder bool) (width, height int32, kind plane.Kind, err error) {
	if l==nil {
		return 0, 0, 0, fmt.Errorf("%w: plane list is nil", ErrNullInput)
	}
	if len(l.Planes)==0 {
		return 0, 0, 0, fmt.Errorf("%w: plane list is empty", ErrDataNotFound)
	}
	width, height=l.Planes[0].Dims()
	kind=l.Planes[0].Kind()
	for i, p:=range l.Planes {
		w, h:=p.Dims()
		if w!=width || h!=height {
			return 0, 0, 0, fmt.Errorf("%w: plane %d is %dx%d, expected %dx%d",
				ErrIllegalInput, i, w, h, width, height)
		}
		if p.Kind()!=kind {
			return 0, 0, 0, fmt.Errorf("%w: plane %d is %s, expected %s",
				ErrInvalidType, i, p.Kind(), kind)
		}
	}
	if needOrder && kind.IsComplex() {
		return 0, 0, 0, fmt.Errorf("%w: %s values have no total order", ErrInvalidType, kind)
	}
	return width, height, kind, nil
}

// Validates an optional caller-allocated contribution map against the
// output dimensions
func checkContrib(contrib *plane.Typed[int32], width, height int32) error {
	if contrib==nil { return nil }
	if contrib.Width!=width || contrib.Height!=height {
		return fmt.Errorf("%w: contribution map is %dx%d, expected %dx%d",
			ErrIllegalInput, contrib.Width, contrib.Height, width, height)
	}
	return nil
}


// Runs fn over [0,pixels) split into batches, limiting parallelism to
// MaxThreads. Batches are disjoint pixel-index ranges and fn must only write
// output elements inside its range, which makes results independent of the
// thread count. Splits into 8 MB work packages, no fewer than 8 per thread
func (e *Engine) forEachBatch(pixels, bytesPerPixel int, fn func(lower, upper int)) {
	maxThreads:=e.MaxThreads
	if maxThreads<1 { maxThreads=runtime.GOMAXPROCS(0) }

	numBatches:=pixels*bytesPerPixel/(8192*1024)
	if numBatches < 8*maxThreads { numBatches=8*maxThreads }
	batchSize:=(pixels+numBatches-1)/numBatches
	if batchSize<1 { batchSize=1 }

	sem:=make(chan bool, maxThreads) // limit parallelism to MaxThreads
	for lower:=0; lower<pixels; lower+=batchSize {
		upper:=lower+batchSize
		if upper>pixels { upper=pixels }

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()
			fn(lower, upper)
		}(lower, upper)
	}
	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}


// Collects the rejection masks of the given planes once, to avoid repeated
// accessor calls in per-pixel loops. Entries are nil for all-accepted planes
func masksOf[T plane.Element](ps []*plane.Typed[T]) []*plane.Mask {
	masks:=make([]*plane.Mask, len(ps))
	for i, p:=range ps {
		masks[i]=p.Mask()
	}
	return masks
}

// Converts an accumulated float64 back to the element type. Integer kinds
// round half away from zero instead of truncating
func fromFloat64[T plane.Real](v float64) T {
	var zero T
	if _, isInt:=any(zero).(int32); isInt {
		return T(math.Round(v))
	}
	return T(v)
}
