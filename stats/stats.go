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


// Package stats provides per-pixel statistics helpers for real numeric
// element types. Accumulation is in float64 to avoid overflow and
// truncation bias on integer inputs.
package stats

import (
	"math"
)

// Real numeric element types
type Real interface {
	~int32 | ~float32 | ~float64
}

// Calculate the mean of the given data. Returns 0 for empty input
func Mean[T Real](xs []T) float64 {
	if len(xs)==0 { return 0 }
	sum:=float64(0)
	for _, x:=range xs { sum+=float64(x) }
	return sum/float64(len(xs))
}

// Calculate mean and population standard deviation of the given data
func MeanStdDev[T Real](xs []T) (mean, stdDev float64) {
	mean=Mean(xs)
	variance:=float64(0)
	for _, x:=range xs { diff:=float64(x)-mean; variance+=diff*diff }
	variance/=float64(len(xs))
	return mean, math.Sqrt(variance)
}

// Calculate the unbiased sample standard deviation about the given center.
// Returns 0 for fewer than two data points, as spread is undefined there
func StdDevAbout[T Real](xs []T, center float64) float64 {
	if len(xs)<2 { return 0 }
	variance:=float64(0)
	for _, x:=range xs { diff:=float64(x)-center; variance+=diff*diff }
	variance/=float64(len(xs)-1)
	return math.Sqrt(variance)
}

// Calculate minimum, mean and maximum of given data in one pass
func MinMeanMax[T Real](data []T) (min T, mean float64, max T) {
	mmin, mmean, mmax:=data[0], float64(0), data[0]
	for _, v:=range data {
		if v<mmin { mmin=v }
		if v>mmax { mmax=v }
		mmean+=float64(v)
	}
	return mmin, mmean/float64(len(data)), mmax
}
