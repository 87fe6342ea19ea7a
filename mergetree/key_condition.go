package mergetree

import (
	"fmt"
	"strings"

	"stratadb/core"
)

// BoolMask is a three-valued truth estimate: a condition over a set of
// rows can be true for some of them and false for others.
type BoolMask struct {
	CanBeTrue  bool
	CanBeFalse bool
}

var (
	MaskAlwaysTrue  = BoolMask{CanBeTrue: true}
	MaskAlwaysFalse = BoolMask{CanBeFalse: true}
	MaskMaybe       = BoolMask{CanBeTrue: true, CanBeFalse: true}
)

// And combines two masks under conjunction.
func (m BoolMask) And(other BoolMask) BoolMask {
	return BoolMask{
		CanBeTrue:  m.CanBeTrue && other.CanBeTrue,
		CanBeFalse: m.CanBeFalse || other.CanBeFalse,
	}
}

// Or combines two masks under disjunction.
func (m BoolMask) Or(other BoolMask) BoolMask {
	return BoolMask{
		CanBeTrue:  m.CanBeTrue || other.CanBeTrue,
		CanBeFalse: m.CanBeFalse && other.CanBeFalse,
	}
}

// Not negates a mask.
func (m BoolMask) Not() BoolMask {
	return BoolMask{CanBeTrue: m.CanBeFalse, CanBeFalse: m.CanBeTrue}
}

// Range is a one-dimensional interval with optional bounds. A nil bound
// is unbounded on that side.
type Range struct {
	Left          core.Value
	Right         core.Value
	LeftIncluded  bool
	RightIncluded bool
}

// WholeRange returns the unbounded range.
func WholeRange() Range {
	return Range{}
}

// PointRange returns the degenerate range [v, v].
func PointRange(v core.Value) Range {
	return Range{Left: v, Right: v, LeftIncluded: true, RightIncluded: true}
}

// RightBounded returns the range (-inf, v) or (-inf, v].
func RightBounded(v core.Value, included bool) Range {
	return Range{Right: v, RightIncluded: included}
}

// LeftBounded returns the range (v, +inf) or [v, +inf).
func LeftBounded(v core.Value, included bool) Range {
	return Range{Left: v, LeftIncluded: included}
}

// BoundedRange returns the closed range [left, right].
func BoundedRange(left, right core.Value) Range {
	return Range{Left: left, Right: right, LeftIncluded: true, RightIncluded: true}
}

func (r Range) String() string {
	lb, rb := "(", ")"
	if r.LeftIncluded {
		lb = "["
	}
	if r.RightIncluded {
		rb = "]"
	}
	left, right := "-inf", "+inf"
	if r.Left != nil {
		left = core.FormatValue(r.Left)
	}
	if r.Right != nil {
		right = core.FormatValue(r.Right)
	}
	return lb + left + ", " + right + rb
}

// boundBelow reports whether an entire right bound lies strictly below
// a left bound, i.e. the two ranges cannot touch.
func boundBelow(right core.Value, rightIncluded bool, left core.Value, leftIncluded bool) bool {
	if right == nil || left == nil {
		return false
	}
	cmp := core.CompareValues(right, left)
	if cmp < 0 {
		return true
	}
	if cmp == 0 {
		return !(rightIncluded && leftIncluded)
	}
	return false
}

// checkRangeIntersection estimates the truth of "value ∈ cond" over all
// values in idx. CanBeTrue when the ranges intersect; CanBeFalse when
// idx is not fully contained in cond.
func checkRangeIntersection(cond, idx Range) BoolMask {
	intersects := !boundBelow(cond.Right, cond.RightIncluded, idx.Left, idx.LeftIncluded) &&
		!boundBelow(idx.Right, idx.RightIncluded, cond.Left, cond.LeftIncluded)

	leftCovered := cond.Left == nil ||
		(idx.Left != nil && func() bool {
			cmp := core.CompareValues(cond.Left, idx.Left)
			return cmp < 0 || (cmp == 0 && (cond.LeftIncluded || !idx.LeftIncluded))
		}())
	rightCovered := cond.Right == nil ||
		(idx.Right != nil && func() bool {
			cmp := core.CompareValues(idx.Right, cond.Right)
			return cmp < 0 || (cmp == 0 && (cond.RightIncluded || !idx.RightIncluded))
		}())

	return BoolMask{CanBeTrue: intersects, CanBeFalse: !(leftCovered && rightCovered)}
}

// Hyperrectangle is one Range per key column, describing the set of key
// tuples between two sparse-index entries.
type Hyperrectangle []Range

// Key condition node kinds: column-range atoms, the unknown atom for
// predicates the index cannot use, and logical combinators.
type keyNodeKind int

const (
	nodeAtomRange keyNodeKind = iota
	nodeAtomUnknown
	nodeAnd
	nodeOr
	nodeNot
)

type keyNode struct {
	kind     keyNodeKind
	keyIndex int // nodeAtomRange
	column   string
	rng      Range
	children []*keyNode
}

// KeyCondition is a conservative monotone predicate over primary-key
// tuples, built from a WHERE tree restricted to an ordered list of key
// columns. Predicates the index cannot express degrade to "maybe".
type KeyCondition struct {
	keyColumns []string
	root       *keyNode // nil when the WHERE clause is absent
}

// NewKeyCondition compiles a WHERE tree against the given key columns.
func NewKeyCondition(where *core.WhereCondition, keyColumns []string) *KeyCondition {
	kc := &KeyCondition{keyColumns: keyColumns}
	if where != nil {
		kc.root = kc.compile(where)
	}
	return kc
}

func (kc *KeyCondition) compile(wc *core.WhereCondition) *keyNode {
	if wc == nil {
		return &keyNode{kind: nodeAtomUnknown}
	}
	if wc.IsComplex {
		switch wc.LogicalOp {
		case "AND":
			return &keyNode{kind: nodeAnd, children: []*keyNode{kc.compile(wc.Left), kc.compile(wc.Right)}}
		case "OR":
			return &keyNode{kind: nodeOr, children: []*keyNode{kc.compile(wc.Left), kc.compile(wc.Right)}}
		case "NOT":
			return &keyNode{kind: nodeNot, children: []*keyNode{kc.compile(wc.Left)}}
		}
		return &keyNode{kind: nodeAtomUnknown}
	}

	keyIndex := kc.keyColumnIndex(wc.Column)
	if keyIndex < 0 {
		return &keyNode{kind: nodeAtomUnknown}
	}

	var rng Range
	switch wc.Operator {
	case "=":
		rng = PointRange(wc.Value)
	case "<":
		rng = RightBounded(wc.Value, false)
	case "<=":
		rng = RightBounded(wc.Value, true)
	case ">":
		rng = LeftBounded(wc.Value, false)
	case ">=":
		rng = LeftBounded(wc.Value, true)
	case "BETWEEN":
		rng = BoundedRange(wc.ValueFrom, wc.ValueTo)
	default:
		// !=, IN and anything else: not usable for range pruning.
		return &keyNode{kind: nodeAtomUnknown}
	}
	return &keyNode{kind: nodeAtomRange, keyIndex: keyIndex, column: wc.Column, rng: rng}
}

func (kc *KeyCondition) keyColumnIndex(column string) int {
	for i, name := range kc.keyColumns {
		if name == column {
			return i
		}
	}
	return -1
}

// AlwaysTrue reports whether the condition places no constraint on the
// key, i.e. the index descent can be skipped.
func (kc *KeyCondition) AlwaysTrue() bool {
	return !hasRangeAtom(kc.root)
}

func hasRangeAtom(node *keyNode) bool {
	if node == nil {
		return false
	}
	if node.kind == nodeAtomRange {
		return true
	}
	for _, child := range node.children {
		if hasRangeAtom(child) {
			return true
		}
	}
	return false
}

// AddCondition conjoins `column ∈ rng` onto the condition. It returns
// false when the column is not part of the key.
func (kc *KeyCondition) AddCondition(column string, rng Range) bool {
	keyIndex := kc.keyColumnIndex(column)
	if keyIndex < 0 {
		return false
	}
	atom := &keyNode{kind: nodeAtomRange, keyIndex: keyIndex, column: column, rng: rng}
	if kc.root == nil {
		kc.root = atom
	} else {
		kc.root = &keyNode{kind: nodeAnd, children: []*keyNode{kc.root, atom}}
	}
	return true
}

// MayBeTrueInRange conservatively decides whether any key tuple in
// [lo, hi] can satisfy the condition. lo and hi are consecutive sparse
// index entries; hi is the first key of the granule after the range.
func (kc *KeyCondition) MayBeTrueInRange(lo, hi []core.Value) bool {
	return kc.checkInHyperrectangle(kc.tupleRangeToHyperrectangle(lo, hi)).CanBeTrue
}

// MayBeTrueAfter conservatively decides whether any key tuple at or
// above lo can satisfy the condition.
func (kc *KeyCondition) MayBeTrueAfter(lo []core.Value) bool {
	return kc.checkInHyperrectangle(kc.tupleRangeToHyperrectangle(lo, nil)).CanBeTrue
}

// tupleRangeToHyperrectangle converts a lexicographic tuple range into a
// conservative per-coordinate box: coordinate i is constrained only
// while all earlier coordinates are pinned to a single value; the first
// unpinned coordinate gets its own interval and everything after it is
// unbounded. hi == nil means +infinity.
func (kc *KeyCondition) tupleRangeToHyperrectangle(lo, hi []core.Value) Hyperrectangle {
	hr := make(Hyperrectangle, len(kc.keyColumns))
	pinned := true
	for i := range hr {
		if !pinned {
			hr[i] = WholeRange()
			continue
		}
		if hi == nil {
			hr[i] = LeftBounded(lo[i], true)
			pinned = false
			continue
		}
		if core.CompareValues(lo[i], hi[i]) == 0 {
			hr[i] = PointRange(lo[i])
			continue
		}
		hr[i] = BoundedRange(lo[i], hi[i])
		pinned = false
	}
	return hr
}

func (kc *KeyCondition) checkInHyperrectangle(hr Hyperrectangle) BoolMask {
	return evalNode(kc.root, hr)
}

func evalNode(node *keyNode, hr Hyperrectangle) BoolMask {
	if node == nil {
		return MaskMaybe
	}
	switch node.kind {
	case nodeAtomRange:
		return checkRangeIntersection(node.rng, hr[node.keyIndex])
	case nodeAtomUnknown:
		return MaskMaybe
	case nodeAnd:
		mask := evalNode(node.children[0], hr)
		for _, child := range node.children[1:] {
			mask = mask.And(evalNode(child, hr))
		}
		return mask
	case nodeOr:
		mask := evalNode(node.children[0], hr)
		for _, child := range node.children[1:] {
			mask = mask.Or(evalNode(child, hr))
		}
		return mask
	case nodeNot:
		return evalNode(node.children[0], hr).Not()
	}
	return MaskMaybe
}

// String renders the condition for diagnostics.
func (kc *KeyCondition) String() string {
	if kc.AlwaysTrue() {
		return "true"
	}
	var sb strings.Builder
	writeNode(&sb, kc.root)
	return sb.String()
}

func writeNode(sb *strings.Builder, node *keyNode) {
	if node == nil {
		return
	}
	switch node.kind {
	case nodeAtomRange:
		fmt.Fprintf(sb, "%s in %s", node.column, node.rng)
	case nodeAtomUnknown:
		sb.WriteString("unknown")
	case nodeAnd, nodeOr:
		op := " and "
		if node.kind == nodeOr {
			op = " or "
		}
		sb.WriteString("(")
		for i, child := range node.children {
			if i > 0 {
				sb.WriteString(op)
			}
			writeNode(sb, child)
		}
		sb.WriteString(")")
	case nodeNot:
		sb.WriteString("not(")
		writeNode(sb, node.children[0])
		sb.WriteString(")")
	}
}
