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

// Synthetic benchmark harness for the collapse engine. Generates a stack of
// noisy planes with injected outliers and rejections, collapses it with the
// selected mode, and reports timing and result statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"
	"github.com/pbnjay/memory"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/planestack/collapse"
	"github.com/mlnoga/planestack/plane"
	"github.com/mlnoga/planestack/stats"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var width   = flag.Int64("width",  1024, "plane width in pixels")
var height  = flag.Int64("height", 1024, "plane height in pixels")
var frames  = flag.Int64("frames", 16,   "number of planes in the stack")
var mode    = flag.String("mode", "sigclip", "collapse mode, one of mean, median, minmax, sigclip")

var kLow     = flag.Float64("kLow",  3.0, "sigma clipping: low threshold in spread multiples")
var kHigh    = flag.Float64("kHigh", 3.0, "sigma clipping: high threshold in spread multiples")
var keepFrac = flag.Float64("keepFrac", 0.5, "sigma clipping: minimum surviving fraction of the stack in (0,1]")
var center   = flag.String("center", "median", "sigma clipping: center estimator, one of mean, median, medianMean")

var nLow  = flag.Int64("nLow",  1, "min-max trim: number of low values to discard")
var nHigh = flag.Int64("nHigh", 1, "min-max trim: number of high values to discard")

var outliers = flag.Int64("outliers", 10, "outlier pixels to inject, per mille of the stack")
var rejects  = flag.Int64("rejects",  5,  "pixels to reject via mask, per mille of the stack")

var threads = flag.Int64("threads", 0, "number of threads, 0=all cores")
var tile    = flag.Int64("tile", 0, "median tile size in bytes, 0=detected L2 cache")

func main() {
	flag.Usage=func() {
		fmt.Printf(`planestack v%s -- imagelist collapse benchmark

Usage: planestack [-flag value] ...

`, version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *cpuprofile!="" {
		f, err:=os.Create(*cpuprofile)
		if err!=nil {
			fmt.Fprintf(os.Stderr, "error creating cpu profile: %s\n", err)
			os.Exit(1)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	e:=collapse.NewEngine()
	e.Log=os.Stdout
	if *threads>0 { e.MaxThreads=int(*threads) }
	if *tile>0    { e.TileBytes=int(*tile) }
	fmt.Printf("planestack v%s: %d MiB system memory, %d threads, %d byte tiles\n",
		version, totalMiBs, e.MaxThreads, e.TileBytes)

	w, h, n:=int32(*width), int32(*height), int(*frames)
	mibs:=int64(n)*int64(w)*int64(h)*4/(1024*1024)
	fmt.Printf("Generating %d planes of %dx%d float32 (%d MiB), %d‰ outliers, %d‰ rejected\n",
		n, w, h, mibs, *outliers, *rejects)
	l:=generateStack(n, w, h)

	start:=time.Now()
	var res plane.Plane
	var err error
	contrib:=plane.New[int32](w, h)

	switch *mode {
	case "mean":
		res, err=e.MeanWithContrib(l, contrib)
	case "median":
		res, err=e.Median(l)
	case "minmax":
		res, err=e.MinMax(l, int(*nLow), int(*nHigh))
	case "sigclip":
		opts:=collapse.SigClipOpts{
			KLow:     float32(*kLow),
			KHigh:    float32(*kHigh),
			KeepFrac: float32(*keepFrac),
		}
		switch *center {
		case "mean":       opts.Center=collapse.CenterMean
		case "median":     opts.Center=collapse.CenterMedian
		case "medianMean": opts.Center=collapse.CenterMedianMean
		default:
			fmt.Fprintf(os.Stderr, "unknown center estimator %q\n", *center)
			os.Exit(1)
		}
		res, err=e.SigClip(l, opts, contrib)
	default:
		fmt.Fprintf(os.Stderr, "unknown collapse mode %q\n", *mode)
		os.Exit(1)
	}
	elapsed:=time.Since(start)

	if err!=nil {
		fmt.Fprintf(os.Stderr, "error collapsing: %s\n", err)
		os.Exit(1)
	}

	out:=res.(*plane.Typed[float32])
	min, mean, max:=stats.MinMeanMax(out.Data)
	mps:=float64(n)*float64(w)*float64(h)/1e6/elapsed.Seconds()
	fmt.Printf("Collapsed in %v (%.1f megapixels/s)\n", elapsed, mps)
	fmt.Printf("Result min %.6g mean %.6g max %.6g, %d rejected output pixels\n",
		min, mean, max, res.Mask().CountRejected())
}

// Builds a stack of planes holding a constant signal with uniform noise,
// plus injected hot-pixel outliers and masked rejections
func generateStack(n int, width, height int32) *plane.List {
	rng:=fastrand.RNG{}
	l:=plane.NewList()
	for i:=0; i<n; i++ {
		p:=plane.New[float32](width, height)
		var m *plane.Mask
		for j:=range p.Data {
			p.Data[j]=1000+float32(rng.Uint32n(100))
			if int64(rng.Uint32n(1000))<*outliers {
				p.Data[j]+=float32(rng.Uint32n(50000))
			}
			if int64(rng.Uint32n(1000))<*rejects {
				if m==nil { m=plane.NewMask(width, height) }
				m.Rejected[j]=true
			}
		}
		if m!=nil { p.SetMask(m) }
		l.Append(p)
	}
	return l
}
