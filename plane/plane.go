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


// Package plane holds the in-memory pixel data model: typed 2D pixel planes,
// per-pixel rejection masks, and ordered plane lists for stacking.
package plane

import (
	"errors"
	"fmt"
)

// Element kind of a pixel plane. Complex kinds are only valid for
// order-free reductions.
type Kind int

const (
	Int32 Kind = iota
	Float32
	Float64
	Complex64
	Complex128
)

// Returns true for complex element kinds, which have no total order
func (k Kind) IsComplex() bool {
	return k==Complex64 || k==Complex128
}

// Element size in bytes
func (k Kind) Bytes() int {
	switch k {
	case Int32, Float32:
		return 4
	case Float64, Complex64:
		return 8
	case Complex128:
		return 16
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case Int32:      return "int32"
	case Float32:    return "float32"
	case Float64:    return "float64"
	case Complex64:  return "complex64"
	case Complex128: return "complex128"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}


// Real element types, usable with ordering-dependent reductions
type Real interface {
	~int32 | ~float32 | ~float64
}

// Complex element types, usable with order-free reductions only
type Complex interface {
	~complex64 | ~complex128
}

// All supported element types
type Element interface {
	~int32 | ~float32 | ~float64 | ~complex64 | ~complex128
}


// A per-pixel rejection mask. Rejected[y*Width+x]==true marks the pixel at
// (x,y) as invalid. A nil *Mask on a plane means all pixels are accepted.
type Mask struct {
	Width, Height int32
	Rejected      []bool
}

// Creates an all-accepted mask of the given dimensions
func NewMask(width, height int32) *Mask {
	return &Mask{
		Width:    width,
		Height:   height,
		Rejected: make([]bool, int(width)*int(height)),
	}
}

func (m *Mask) At(x, y int32) bool         { return m.Rejected[y*m.Width+x] }
func (m *Mask) Set(x, y int32, rej bool)   { m.Rejected[y*m.Width+x]=rej }

// Counts the number of rejected pixels
func (m *Mask) CountRejected() int {
	num:=0
	for _, r:=range m.Rejected {
		if r { num++ }
	}
	return num
}

// Creates a deep copy of the mask
func (m *Mask) Clone() *Mask {
	c:=NewMask(m.Width, m.Height)
	copy(c.Rejected, m.Rejected)
	return c
}


// A 2D pixel plane of some element kind, with an optional rejection mask.
// The zero mask (nil) means all pixels are accepted.
type Plane interface {
	Kind() Kind
	Dims() (width, height int32)
	Pixels() int
	Mask() *Mask
	SetMask(m *Mask) error
}

// The concrete plane type, owning its storage exclusively.
// Data is stored row-major, Data[y*Width+x]
type Typed[T Element] struct {
	Width, Height int32
	Data          []T

	mask *Mask
}

// Creates a plane of the given dimensions with zeroed data
func New[T Element](width, height int32) *Typed[T] {
	return &Typed[T]{
		Width:  width,
		Height: height,
		Data:   make([]T, int(width)*int(height)),
	}
}

// Creates a plane from given data. Data is not copied, allocated if nil
func FromData[T Element](width, height int32, data []T) *Typed[T] {
	if data==nil {
		data=make([]T, int(width)*int(height))
	}
	return &Typed[T]{
		Width:  width,
		Height: height,
		Data:   data,
	}
}

func (p *Typed[T]) Kind() Kind {
	var zero T
	switch any(zero).(type) {
	case int32:      return Int32
	case float32:    return Float32
	case float64:    return Float64
	case complex64:  return Complex64
	case complex128: return Complex128
	}
	panic("unreachable element type")
}

func (p *Typed[T]) Dims() (width, height int32) { return p.Width, p.Height }

func (p *Typed[T]) Pixels() int { return int(p.Width)*int(p.Height) }

// The rejection mask, or nil if all pixels are accepted
func (p *Typed[T]) Mask() *Mask { return p.mask }

// Attaches a rejection mask. Mask dimensions must match the plane.
// A nil mask resets the plane to all-accepted
func (p *Typed[T]) SetMask(m *Mask) error {
	if m!=nil && (m.Width!=p.Width || m.Height!=p.Height) {
		return errors.New(fmt.Sprintf("mask dimensions %dx%d do not match plane %dx%d",
			m.Width, m.Height, p.Width, p.Height))
	}
	p.mask=m
	return nil
}

// Creates a deep copy of the plane including its mask
func (p *Typed[T]) Clone() *Typed[T] {
	c:=New[T](p.Width, p.Height)
	copy(c.Data, p.Data)
	if p.mask!=nil { c.mask=p.mask.Clone() }
	return c
}


// An ordered list of planes to be collapsed. Insertion order is significant
type List struct {
	Planes []Plane
}

// Creates a list from the given planes
func NewList(planes ...Plane) *List {
	return &List{Planes: planes}
}

func (l *List) Len() int { return len(l.Planes) }

// Dimensions of the first plane, or (0,0) for an empty list
func (l *List) Dims() (width, height int32) {
	if len(l.Planes)==0 { return 0, 0 }
	return l.Planes[0].Dims()
}

// Appends a plane to the list
func (l *List) Append(p Plane) { l.Planes=append(l.Planes, p) }

// Extracts a homogeneous typed view of the list.
// Returns false if any plane is of a different element type
func AsTyped[T Element](l *List) ([]*Typed[T], bool) {
	ps:=make([]*Typed[T], len(l.Planes))
	for i, p:=range l.Planes {
		tp, ok:=p.(*Typed[T])
		if !ok { return nil, false }
		ps[i]=tp
	}
	return ps, true
}
