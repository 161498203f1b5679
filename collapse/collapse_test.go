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
	"errors"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/planestack/plane"
)

// test engine with deterministic single-threaded execution
func newTestEngine() *Engine {
	e:=NewEngine()
	e.MaxThreads=1
	return e
}

// builds a list of float32 planes from per-plane pixel data
func newListFloat32(width, height int32, planeData [][]float32) *plane.List {
	l:=plane.NewList()
	for _, data:=range planeData {
		d:=append([]float32(nil), data...)
		l.Append(plane.FromData(width, height, d))
	}
	return l
}

// builds a list of n constant-valued float32 planes
func constantListFloat32(n int, width, height int32, v float32) *plane.List {
	l:=plane.NewList()
	for i:=0; i<n; i++ {
		p:=plane.New[float32](width, height)
		for j:=range p.Data { p.Data[j]=v }
		l.Append(p)
	}
	return l
}

// builds a list of n random-valued float32 planes with the given fraction
// of randomly rejected pixels per plane
func randomListFloat32(rng *fastrand.RNG, n int, width, height int32, rejectPerMille uint32) *plane.List {
	l:=plane.NewList()
	for i:=0; i<n; i++ {
		p:=plane.New[float32](width, height)
		var m *plane.Mask
		for j:=range p.Data {
			p.Data[j]=float32(rng.Uint32n(10000))/10.0
			if rejectPerMille>0 && rng.Uint32n(1000)<rejectPerMille {
				if m==nil { m=plane.NewMask(width, height) }
				m.Rejected[j]=true
			}
		}
		if m!=nil { p.SetMask(m) }
		l.Append(p)
	}
	return l
}

// rejects the pixel at linear index i on the given plane
func rejectAt(t *testing.T, p plane.Plane, i int) {
	t.Helper()
	m:=p.Mask()
	if m==nil {
		w, h:=p.Dims()
		m=plane.NewMask(w, h)
		if err:=p.SetMask(m); err!=nil { t.Fatal(err) }
	}
	m.Rejected[i]=true
}

func dataOf(t *testing.T, p plane.Plane) []float32 {
	t.Helper()
	tp, ok:=p.(*plane.Typed[float32])
	if !ok { t.Fatalf("plane is %T, expected *plane.Typed[float32]", p) }
	return tp.Data
}


// Property: collapsing an all-identical-value list without rejections yields
// that constant at every pixel, for all four algorithms
func TestConstantStackInvariance(t *testing.T) {
	e:=newTestEngine()
	const v=float32(17.5)
	l:=constantListFloat32(8, 13, 7, v)

	results:=map[string]plane.Plane{}
	var err error
	if results["mean"], err=e.Mean(l); err!=nil { t.Fatal(err) }
	if results["median"], err=e.Median(l); err!=nil { t.Fatal(err) }
	if results["minmax"], err=e.MinMax(l, 0, 0); err!=nil { t.Fatal(err) }
	opts:=SigClipOpts{KLow:1, KHigh:1, KeepFrac:0.25, Center:CenterMedianMean}
	if results["sigclip"], err=e.SigClip(l, opts, nil); err!=nil { t.Fatal(err) }

	for name, res:=range results {
		for i, d:=range dataOf(t, res) {
			if d!=v {
				t.Fatalf("%s: pixel %d got %f expect %f", name, i, d, v)
			}
		}
		if num:=res.Mask().CountRejected(); num!=0 {
			t.Errorf("%s: %d rejected output pixels, expect 0", name, num)
		}
	}
}

// Property: if exactly one plane is accepted at a pixel, every algorithm
// returns that plane's value there, with the output pixel accepted
func TestSingleSurvivorPropagation(t *testing.T) {
	e:=newTestEngine()
	l:=newListFloat32(4, 3, [][]float32{
		make([]float32, 12), make([]float32, 12), make([]float32, 12),
	})
	for pi, p:=range l.Planes {
		tp:=p.(*plane.Typed[float32])
		for j:=range tp.Data { tp.Data[j]=float32(10*(pi+1)) }
	}
	// at pixel 5, only plane 1 (value 20) survives
	rejectAt(t, l.Planes[0], 5)
	rejectAt(t, l.Planes[2], 5)

	check:=func(name string, res plane.Plane, err error) {
		if err!=nil { t.Fatalf("%s: %v", name, err) }
		if d:=dataOf(t, res)[5]; d!=20 {
			t.Errorf("%s: pixel 5 got %f expect 20", name, d)
		}
		if res.Mask().Rejected[5] {
			t.Errorf("%s: pixel 5 rejected, expect accepted", name)
		}
	}
	res, err:=e.Mean(l);   check("mean", res, err)
	res, err=e.Median(l);  check("median", res, err)
	res, err=e.MinMax(l, 0, 0); check("minmax", res, err)
	res, err=e.SigClip(l, SigClipOpts{KLow:2, KHigh:2, KeepFrac:0.3, Center:CenterMean}, nil)
	check("sigclip", res, err)
}

// Property: if all planes are rejected at a pixel, the output pixel is
// rejected for all four algorithms, independent of other pixels
func TestTotalRejectionPropagation(t *testing.T) {
	e:=newTestEngine()
	l:=constantListFloat32(5, 6, 4, 3.0)
	for _, p:=range l.Planes {
		rejectAt(t, p, 7)
	}

	check:=func(name string, res plane.Plane, err error) {
		if err!=nil { t.Fatalf("%s: %v", name, err) }
		if !res.Mask().Rejected[7] {
			t.Errorf("%s: pixel 7 accepted, expect rejected", name)
		}
		if num:=res.Mask().CountRejected(); num!=1 {
			t.Errorf("%s: %d rejected output pixels, expect 1", name, num)
		}
	}
	res, err:=e.Mean(l);   check("mean", res, err)
	res, err=e.Median(l);  check("median", res, err)
	res, err=e.MinMax(l, 1, 1); check("minmax", res, err)
	res, err=e.SigClip(l, SigClipOpts{KLow:3, KHigh:3, KeepFrac:0.5, Center:CenterMedian}, nil)
	check("sigclip", res, err)
}

// Parallel execution must produce bit-identical results to single-threaded
// execution for every algorithm
func TestParallelDeterminism(t *testing.T) {
	rng:=fastrand.RNG{}
	l:=randomListFloat32(&rng, 20, 40, 30, 50)

	serial:=newTestEngine()
	parallel:=NewEngine()
	parallel.MaxThreads=8

	type op struct {
		name string
		run  func(e *Engine) (plane.Plane, error)
	}
	opts:=SigClipOpts{KLow:1.5, KHigh:1.5, KeepFrac:0.2, Center:CenterMedianMean}
	ops:=[]op{
		{"mean",    func(e *Engine) (plane.Plane, error) { return e.Mean(l) }},
		{"median",  func(e *Engine) (plane.Plane, error) { return e.Median(l) }},
		{"minmax",  func(e *Engine) (plane.Plane, error) { return e.MinMax(l, 2, 3) }},
		{"sigclip", func(e *Engine) (plane.Plane, error) { return e.SigClip(l, opts, nil) }},
	}
	for _, o:=range ops {
		want, err:=o.run(serial)
		if err!=nil { t.Fatalf("%s serial: %v", o.name, err) }
		got, err:=o.run(parallel)
		if err!=nil { t.Fatalf("%s parallel: %v", o.name, err) }

		wantData, gotData:=dataOf(t, want), dataOf(t, got)
		for i:=range wantData {
			if wantData[i]!=gotData[i] {
				t.Fatalf("%s: pixel %d differs, serial %f parallel %f", o.name, i, wantData[i], gotData[i])
			}
			if want.Mask().Rejected[i]!=got.Mask().Rejected[i] {
				t.Fatalf("%s: mask differs at pixel %d", o.name, i)
			}
		}
	}
}

// Shared entry checks: shape and kind homogeneity, nil and empty lists
func TestValidation(t *testing.T) {
	e:=newTestEngine()

	if _, err:=e.Mean(nil); !errors.Is(err, ErrNullInput) {
		t.Errorf("nil list: got %v expect ErrNullInput", err)
	}
	if _, err:=e.Median(plane.NewList()); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("empty list: got %v expect ErrDataNotFound", err)
	}

	mixedDims:=plane.NewList(plane.New[float32](4, 4), plane.New[float32](4, 5))
	if _, err:=e.Mean(mixedDims); !errors.Is(err, ErrIllegalInput) {
		t.Errorf("mixed dims: got %v expect ErrIllegalInput", err)
	}

	mixedKinds:=plane.NewList(plane.New[float32](4, 4), plane.New[float64](4, 4))
	if _, err:=e.Mean(mixedKinds); !errors.Is(err, ErrInvalidType) {
		t.Errorf("mixed kinds: got %v expect ErrInvalidType", err)
	}

	// no partial results on failed preconditions
	if res, err:=e.Median(mixedDims); err==nil || res!=nil {
		t.Errorf("mixed dims median: got plane %v err %v, expect nil result and error", res, err)
	}
}

// JSON round trips fill in defaults for missing entries
func TestJSONDefaults(t *testing.T) {
	var e Engine
	if err:=e.UnmarshalJSON([]byte(`{"maxThreads":3}`)); err!=nil { t.Fatal(err) }
	if e.MaxThreads!=3 { t.Errorf("maxThreads got %d expect 3", e.MaxThreads) }
	if e.TileBytes<=0 { t.Errorf("tileBytes got %d expect default >0", e.TileBytes) }

	var o SigClipOpts
	if err:=o.UnmarshalJSON([]byte(`{"kHigh":5}`)); err!=nil { t.Fatal(err) }
	def:=NewSigClipOptsDefault()
	if o.KHigh!=5 || o.KLow!=def.KLow || o.KeepFrac!=def.KeepFrac || o.Center!=def.Center {
		t.Errorf("got %+v, expect defaults except kHigh=5", o)
	}
}
