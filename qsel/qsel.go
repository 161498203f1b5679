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


// Package qsel provides quicksort and quickselect primitives for real
// numeric element types, used by the ordering-dependent collapse modes.
package qsel

// Real numeric element types with a total order
type Real interface {
	~int32 | ~float32 | ~float64
}

// Sort an array in ascending order.
// Floating point arrays must not contain IEEE NaN
func Sort[T Real](a []T) {
    if len(a)>1 {
        index := Partition(a)
        Sort(a[:index+1])
        Sort(a[index+1:])
    }
}


// Partitions an array with the middle pivot element, and returns the pivot index.
// Values less than the pivot are moved left of the pivot, those greater are moved right.
// Floating point arrays must not contain IEEE NaN
func Partition[T Real](a []T) int {
    left, right:=0, len(a)-1
    mid   := (left+right)>>1
    pivot := a[mid]
    l := left -1
    r := right+1
    for {
        for {
            l++
            if a[l]>=pivot { break }
        }
        for {
            r--
            if a[r]<=pivot { break }
        }
        if l >= r { return r }
        a[l], a[r] = a[r], a[l]
    }
}


// Select the median of an array, defined as the element at index len(a)>>1
// of the sorted array. For even lengths this is the upper of the two middle
// values. Partially reorders the array.
// Floating point arrays must not contain IEEE NaN
func Median[T Real](a []T) T {
    return Select(a, (len(a)>>1)+1)
}


// Select kth lowest element from an array. Partially reorders the array.
// Floating point arrays must not contain IEEE NaN
func Select[T Real](a []T, k int) T {
    left, right:=0, len(a)-1
    for left<right {
        // partition
        mid:=(left+right)>>1
        pivot := a[mid]
        l, r  := left-1, right+1
        for {
            for {
                l++
                if a[l]>=pivot { break }
            }
            for {
                r--
                if a[r]<=pivot { break }
            }
            if l >= r { break } // index in r
            a[l], a[r] = a[r], a[l]
        }
        index:=r

        offset:=index-left+1
        if k<=offset {
            right=index
        } else {
            left=index+1
            k=k-offset
        }
    }
    return a[left]
}
