package pathfind

import "container/heap"

// Move costs on the 8-connected grid (octile, scaled by 10).
const (
	costOrthogonal = 10
	costDiagonal   = 14
)

// FindPath returns the cheapest walkable path from (fromX, fromY) to
// (toX, toY) inclusive of both endpoints, or nil when none exists.
// Results, including failures, are memoized under the full query key.
func (g *Grid) FindPath(fromX, fromY, toX, toY int, hasAccess bool) []Point {
	key := cacheKey{fromX: fromX, fromY: fromY, toX: toX, toY: toY, hasAccess: hasAccess}

	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.cache[key]; ok {
		return clonePath(entry.path)
	}

	path := g.astar(fromX, fromY, toX, toY, hasAccess)

	if len(g.cache) >= cacheSoftCap {
		g.cache = make(map[cacheKey]cacheEntry)
	}
	g.cache[key] = cacheEntry{path: path, found: path != nil}
	return clonePath(path)
}

func clonePath(path []Point) []Point {
	if path == nil {
		return nil
	}
	out := make([]Point, len(path))
	copy(out, path)
	return out
}

type pathNode struct {
	x, y   int
	parent *pathNode
	gCost  int
	hCost  int
	fCost  int
	index  int
}

type pointKey struct {
	x, y int
}

// heuristic is the octile distance: diagonals cover min(dx,dy) steps at
// 14, the remainder orthogonally at 10. Admissible on this cost model.
func heuristic(x, y, tx, ty int) int {
	dx := abs(x - tx)
	dy := abs(y - ty)
	return costDiagonal*min(dx, dy) + costOrthogonal*abs(dx-dy)
}

// astar runs the search. Caller holds g.mu.
func (g *Grid) astar(sx, sy, tx, ty int, hasAccess bool) []Point {
	if g.blocked(sx, sy, hasAccess) || g.blocked(tx, ty, hasAccess) {
		return nil
	}
	if sx == tx && sy == ty {
		return []Point{{X: sx, Y: sy}}
	}

	start := &pathNode{x: sx, y: sy, hCost: heuristic(sx, sy, tx, ty)}
	start.fCost = start.hCost

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, start)

	closed := make(map[pointKey]struct{}, 256)
	bestG := map[pointKey]int{{sx, sy}: 0}

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)

		key := pointKey{current.x, current.y}
		if _, seen := closed[key]; seen {
			continue
		}
		closed[key] = struct{}{}

		if current.x == tx && current.y == ty {
			return buildPath(current)
		}

		g.expand(current, tx, ty, hasAccess, open, closed, bestG)
	}
	return nil
}

// expand relaxes the 8 neighbors of current. A diagonal step is refused
// when either orthogonally adjacent intermediate cell is blocked, so the
// path never cuts a corner.
func (g *Grid) expand(
	current *pathNode,
	tx, ty int,
	hasAccess bool,
	open *nodeHeap,
	closed map[pointKey]struct{},
	bestG map[pointKey]int,
) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := current.x + dx
			ny := current.y + dy
			if g.blocked(nx, ny, hasAccess) {
				continue
			}

			cost := costOrthogonal
			if dx != 0 && dy != 0 {
				if g.blocked(current.x+dx, current.y, hasAccess) || g.blocked(current.x, current.y+dy, hasAccess) {
					continue
				}
				cost = costDiagonal
			}

			key := pointKey{nx, ny}
			if _, seen := closed[key]; seen {
				continue
			}

			gCost := current.gCost + cost
			if prev, ok := bestG[key]; ok && prev <= gCost {
				continue
			}
			bestG[key] = gCost

			node := &pathNode{
				x: nx, y: ny,
				parent: current,
				gCost:  gCost,
				hCost:  heuristic(nx, ny, tx, ty),
			}
			node.fCost = node.gCost + node.hCost
			heap.Push(open, node)
		}
	}
}

func buildPath(goal *pathNode) []Point {
	length := 0
	for n := goal; n != nil; n = n.parent {
		length++
	}
	path := make([]Point, length)
	for n := goal; n != nil; n = n.parent {
		length--
		path[length] = Point{X: n.x, Y: n.y}
	}
	return path
}

// nodeHeap is the A* open list: min-heap by fCost, ties broken by the
// lower heuristic so nodes nearer the goal pop first.
type nodeHeap []*pathNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].fCost != h[j].fCost {
		return h[i].fCost < h[j].fCost
	}
	return h[i].hCost < h[j].hCost
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *nodeHeap) Push(x any) {
	n := x.(*pathNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}
