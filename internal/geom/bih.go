package geom

import "slices"

const defaultLeafSize = 4

// Tree is a bounding interval hierarchy over a fixed set of boxes. It only
// stores item indices; callers keep the items themselves. A Tree is
// immutable after BuildTree and safe for concurrent use.
type Tree struct {
	nodes []treeNode
	items []int32
}

type treeNode struct {
	bounds AABB
	// Inner nodes have count == 0 and children at left/right.
	left, right int32
	first       int32
	count       int32
}

// BuildTree splits on the longest centroid axis at the median. Item order is
// stable for equal centroids so identical inputs produce identical trees.
func BuildTree(bounds []AABB, leafSize int) *Tree {
	if leafSize <= 0 {
		leafSize = defaultLeafSize
	}
	t := &Tree{items: make([]int32, len(bounds))}
	for i := range t.items {
		t.items[i] = int32(i)
	}
	if len(bounds) == 0 {
		return t
	}
	t.nodes = make([]treeNode, 0, 2*len(bounds)/leafSize+1)
	t.build(bounds, 0, len(bounds), leafSize)
	return t
}

func (t *Tree) build(bounds []AABB, lo, hi, leafSize int) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{})

	box := EmptyAABB()
	centers := EmptyAABB()
	for _, it := range t.items[lo:hi] {
		box = box.Union(bounds[it])
		centers = centers.Extend(bounds[it].Center())
	}

	if hi-lo <= leafSize {
		t.nodes[idx] = treeNode{bounds: box, first: int32(lo), count: int32(hi - lo)}
		return idx
	}

	size := centers.Size()
	axis := 0
	if size[1] > size[axis] {
		axis = 1
	}
	if size[2] > size[axis] {
		axis = 2
	}
	slices.SortStableFunc(t.items[lo:hi], func(a, b int32) int {
		ca, cb := bounds[a].Center()[axis], bounds[b].Center()[axis]
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return 0
	})
	mid := lo + (hi-lo)/2
	left := t.build(bounds, lo, mid, leafSize)
	right := t.build(bounds, mid, hi, leafSize)
	t.nodes[idx] = treeNode{bounds: box, left: left, right: right}
	return idx
}

// Len returns the number of indexed items.
func (t *Tree) Len() int { return len(t.items) }

// Bounds returns the box around every item, or an empty box.
func (t *Tree) Bounds() AABB {
	if len(t.nodes) == 0 {
		return EmptyAABB()
	}
	return t.nodes[0].bounds
}

// RayVisitor is called for every item whose box the ray enters before
// maxDist. It returns the (possibly shortened) search distance and whether
// traversal should stop.
type RayVisitor func(item int, maxDist float32) (float32, bool)

// IntersectRay walks the items along r up to maxDist. It returns the final
// search distance as shortened by visit.
func (t *Tree) IntersectRay(r Ray, maxDist float32, visit RayVisitor) float32 {
	if len(t.nodes) == 0 {
		return maxDist
	}
	var buf [64]int32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if _, ok := n.bounds.IntersectRay(r, maxDist); !ok {
			continue
		}
		if n.count == 0 {
			stack = append(stack, n.right, n.left)
			continue
		}
		for _, it := range t.items[n.first : n.first+n.count] {
			var stop bool
			if maxDist, stop = visit(int(it), maxDist); stop {
				return maxDist
			}
		}
	}
	return maxDist
}

// Visit calls visit for every item under a node accepted by pred. pred is
// applied to inner node boxes and item boxes alike, so it must be monotone:
// accepting a box implies accepting its parent. visit returns false to stop.
func (t *Tree) Visit(bounds func(item int) AABB, pred func(AABB) bool, visit func(item int) bool) {
	if len(t.nodes) == 0 {
		return
	}
	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !pred(n.bounds) {
			continue
		}
		if n.count == 0 {
			stack = append(stack, n.right, n.left)
			continue
		}
		for _, it := range t.items[n.first : n.first+n.count] {
			if bounds != nil && !pred(bounds(int(it))) {
				continue
			}
			if !visit(int(it)) {
				return
			}
		}
	}
}
