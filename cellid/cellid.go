/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package cellid packs and unpacks hexagonal grid cell identifiers.
//
// A CellID is a 64-bit integer laid out as follows (bit 63 is the most
// significant):
//
//	63      reserved, always 0
//	59..62  mode, 1 for cells
//	56..58  reserved, always 0
//	52..55  resolution r in [0, 15]
//	45..51  base cell in [0, 121]
//	0..44   fifteen 3-bit digits, the one for resolution i at (15-i)*3
//
// Digits finer than r hold 7. Digits up to r are in [0, 6].
package cellid

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/x"
)

// CellID identifies a single zone of the grid hierarchy.
type CellID uint64

const (
	// MaxResolution is the finest resolution of the hierarchy.
	MaxResolution = 15
	// NumBaseCells is the number of resolution 0 cells.
	NumBaseCells = 122

	// UnusedDigit fills the digit slots finer than the resolution.
	UnusedDigit = 7
	// CenterDigit is the digit of the child sharing its parent's center.
	CenterDigit = 0
	// KAxisDigit is the digit deleted beneath pentagons.
	KAxisDigit = 1

	cellMode       = 1
	modeOffset     = 59
	modeMask       = uint64(15) << modeOffset
	reservedOffset = 56
	reservedMask   = uint64(7) << reservedOffset
	resOffset      = 52
	resMask        = uint64(15) << resOffset
	baseCellOffset = 45
	baseCellMask   = uint64(127) << baseCellOffset
	highBit        = uint64(1) << 63
	digitBits      = 3
	digitMask      = uint64(7)

	// base cell 0 at resolution 0 with every digit unused.
	initID = uint64(cellMode)<<modeOffset | (uint64(1)<<baseCellOffset - 1)
)

// Invalid is never a valid cell.
const Invalid CellID = 0

var pentagonBaseCells = [...]int{4, 14, 24, 38, 49, 58, 63, 72, 83, 97, 107, 117}

var isPentagonBase = func() (m [NumBaseCells]bool) {
	for _, b := range pentagonBaseCells {
		m[b] = true
	}
	return m
}()

// IsPentagonBaseCell reports whether base cell b has five neighbours.
func IsPentagonBaseCell(b int) bool {
	return b >= 0 && b < NumBaseCells && isPentagonBase[b]
}

// PentagonBaseCells returns the twelve pentagon base cell numbers.
func PentagonBaseCells() []int {
	return append([]int(nil), pentagonBaseCells[:]...)
}

func digitOffset(res int) uint {
	return uint((MaxResolution - res) * digitBits)
}

// Encode packs a resolution, a base cell and one digit per resolution step.
func Encode(level, baseCell int, digits []int) (CellID, error) {
	if level < 0 || level > MaxResolution {
		return Invalid, x.Invalidf("resolution %d outside [0, %d]", level, MaxResolution)
	}
	if baseCell < 0 || baseCell >= NumBaseCells {
		return Invalid, x.Invalidf("base cell %d outside [0, %d)", baseCell, NumBaseCells)
	}
	if len(digits) != level {
		return Invalid, x.Invalidf("got %d digits for resolution %d", len(digits), level)
	}
	id := initID&^resMask&^baseCellMask |
		uint64(level)<<resOffset | uint64(baseCell)<<baseCellOffset
	leading := true
	for i, d := range digits {
		if d < 0 || d > 6 {
			return Invalid, x.Invalidf("digit %d at resolution %d outside [0, 6]", d, i+1)
		}
		if leading && d != CenterDigit {
			if d == KAxisDigit && isPentagonBase[baseCell] {
				return Invalid, x.Invalidf("digit 1 at resolution %d is deleted under pentagon base cell %d",
					i+1, baseCell)
			}
			leading = false
		}
		off := digitOffset(i + 1)
		id = id&^(digitMask<<off) | uint64(d)<<off
	}
	return CellID(id), nil
}

// Decode unpacks a cell into its resolution, base cell and digits.
func Decode(c CellID) (level, baseCell int, digits []int) {
	level = c.Resolution()
	baseCell = c.BaseCell()
	digits = make([]int, level)
	for i := range digits {
		digits[i] = c.Digit(i + 1)
	}
	return level, baseCell, digits
}

// Resolution returns the level of c.
func (c CellID) Resolution() int {
	return int((uint64(c) & resMask) >> resOffset)
}

// BaseCell returns the resolution 0 ancestor number of c.
func (c CellID) BaseCell() int {
	return int((uint64(c) & baseCellMask) >> baseCellOffset)
}

// Digit returns the digit for resolution res, in [1, 15].
func (c CellID) Digit(res int) int {
	return int((uint64(c) >> digitOffset(res)) & digitMask)
}

func (c CellID) setDigit(res, d int) CellID {
	off := digitOffset(res)
	return CellID(uint64(c)&^(digitMask<<off) | uint64(d)<<off)
}

func (c CellID) setResolution(res int) CellID {
	return CellID(uint64(c)&^resMask | uint64(res)<<resOffset)
}

// leadingNonZeroDigit returns the first digit that is not 0, or 0.
func (c CellID) leadingNonZeroDigit() int {
	for r := 1; r <= c.Resolution(); r++ {
		if d := c.Digit(r); d != CenterDigit {
			return d
		}
	}
	return CenterDigit
}

// IsPentagon reports whether c has five neighbours: a pentagon base cell
// followed only by center digits.
func (c CellID) IsPentagon() bool {
	return IsPentagonBaseCell(c.BaseCell()) && c.leadingNonZeroDigit() == CenterDigit
}

// IsValid reports whether c is a well formed cell identifier.
func (c CellID) IsValid() bool {
	u := uint64(c)
	if u&highBit != 0 || (u&modeMask)>>modeOffset != cellMode || u&reservedMask != 0 {
		return false
	}
	base := c.BaseCell()
	if base >= NumBaseCells {
		return false
	}
	res := c.Resolution()
	leading := true
	for r := 1; r <= MaxResolution; r++ {
		d := c.Digit(r)
		if r > res {
			if d != UnusedDigit {
				return false
			}
			continue
		}
		if d == UnusedDigit {
			return false
		}
		if leading && d != CenterDigit {
			if d == KAxisDigit && isPentagonBase[base] {
				return false
			}
			leading = false
		}
	}
	return true
}

// Parent returns the ancestor of c at level. It fails if level is finer
// than c.
func (c CellID) Parent(level int) (CellID, error) {
	res := c.Resolution()
	if level < 0 || level > res {
		return Invalid, errors.Wrapf(x.ErrOutOfRange, "parent level %d of resolution %d cell", level, res)
	}
	p := c.setResolution(level)
	for r := level + 1; r <= res; r++ {
		p = p.setDigit(r, UnusedDigit)
	}
	return p, nil
}

// CenterChild returns the descendant of c at level that shares its center.
func (c CellID) CenterChild(level int) (CellID, error) {
	res := c.Resolution()
	if level < res || level > MaxResolution {
		return Invalid, errors.Wrapf(x.ErrOutOfRange, "center child level %d of resolution %d cell", level, res)
	}
	ch := c.setResolution(level)
	for r := res + 1; r <= level; r++ {
		ch = ch.setDigit(r, CenterDigit)
	}
	return ch, nil
}

// Child returns the child of c in direction digit.
func (c CellID) Child(digit int) (CellID, error) {
	res := c.Resolution()
	if res == MaxResolution {
		return Invalid, errors.Wrapf(x.ErrOutOfRange, "cell %s has no children", c)
	}
	if digit < 0 || digit > 6 || (digit == KAxisDigit && c.IsPentagon()) {
		return Invalid, x.Invalidf("child digit %d of cell %s", digit, c)
	}
	return c.setResolution(res + 1).setDigit(res+1, digit), nil
}

var (
	hexagonDigits  = []int{0, 1, 2, 3, 4, 5, 6}
	pentagonDigits = []int{0, 2, 3, 4, 5, 6}
)

// ChildDigits returns the digits of the children of c, in increasing order.
// Callers must not modify the returned slice.
func (c CellID) ChildDigits() []int {
	if c.IsPentagon() {
		return pentagonDigits
	}
	return hexagonDigits
}

// Children returns the direct children of c, or nil at the finest resolution.
func (c CellID) Children() []CellID {
	res := c.Resolution()
	if res == MaxResolution {
		return nil
	}
	digits := c.ChildDigits()
	out := make([]CellID, 0, len(digits))
	base := c.setResolution(res + 1)
	for _, d := range digits {
		out = append(out, base.setDigit(res+1, d))
	}
	return out
}

// IsDescendantOf reports whether c equals a or lies beneath it.
func (c CellID) IsDescendantOf(a CellID) bool {
	if c.Resolution() < a.Resolution() {
		return false
	}
	p, err := c.Parent(a.Resolution())
	return err == nil && p == a
}

// BaseCellID returns the resolution 0 cell for base cell b.
func BaseCellID(b int) (CellID, error) {
	return Encode(0, b, nil)
}

// String returns the lower case hexadecimal form of c.
func (c CellID) String() string {
	return strconv.FormatUint(uint64(c), 16)
}

// FromString parses the hexadecimal form of a cell and validates it.
func FromString(s string) (CellID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Invalid, errors.Wrapf(x.ErrInvalidArgument, "cell %q: %v", s, err)
	}
	c := CellID(u)
	if !c.IsValid() {
		return Invalid, x.Invalidf("cell %q is not a valid cell identifier", s)
	}
	return c, nil
}
