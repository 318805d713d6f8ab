package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/funnyzak/replaytap/pkg/session"
)

// Ordering modes
const (
	ModeTree     = "tree"
	ModePathTime = "path_time"
	ModeTime     = "time"
)

// Duplicate anchor policies
const (
	AnchorLast  = "last"
	AnchorFirst = "first"
)

// Node is one record placed in the replay forest
type Node struct {
	Record session.Record
	// Index is the position of the record in the fetched list.
	Index int
	// Seq is the pre-order position of the node in its forest.
	Seq int
	// Depth is the distance from the node's root, not the path depth.
	Depth    int
	Parent   *Node
	Children []*Node
}

// Forest is an ordered list of root nodes. Flat orderings are forests of
// childless roots.
type Forest []*Node

// Options selects how records are structured
type Options struct {
	Mode            string
	DuplicateAnchor string
	SortSiblings    bool
}

// Action tells Walk how to proceed after a visit
type Action int

const (
	// Continue descends into the node's children.
	Continue Action = iota
	// SkipChildren leaves the node's subtree unvisited.
	SkipChildren
)

// Build structures records according to opts.Mode. Hierarchy paths are
// normalized on the copies held by the returned nodes.
func Build(records []session.Record, opts Options) (Forest, error) {
	var forest Forest
	switch strings.ToLower(opts.Mode) {
	case "", ModeTree:
		anchor := strings.ToLower(opts.DuplicateAnchor)
		if anchor != "" && anchor != AnchorLast && anchor != AnchorFirst {
			return nil, fmt.Errorf("unknown duplicate anchor %q", opts.DuplicateAnchor)
		}
		forest = BuildTree(records, anchor == AnchorFirst, opts.SortSiblings)
	case ModePathTime:
		forest = SortByPathTime(records)
	case ModeTime:
		forest = SortByTime(records)
	default:
		return nil, fmt.Errorf("unknown replay mode %q", opts.Mode)
	}
	return forest, nil
}

// BuildTree links records into a forest by hierarchy path. A record whose
// parent path has an anchor becomes that anchor's child, otherwise it is a
// root. Records sharing a path all stay in the forest as siblings; the last
// one (or the first when anchorFirst is set) receives the children.
func BuildTree(records []session.Record, anchorFirst, sortSiblings bool) Forest {
	nodes := make([]*Node, len(records))
	anchors := make(map[string]*Node, len(records))
	for i, rec := range records {
		n := &Node{Record: rec.Normalize(), Index: i}
		nodes[i] = n
		if _, taken := anchors[n.Record.HierarchyPath]; taken && anchorFirst {
			continue
		}
		anchors[n.Record.HierarchyPath] = n
	}

	var forest Forest
	for _, n := range nodes {
		parentPath := session.ParentPath(n.Record.HierarchyPath)
		parent, ok := anchors[parentPath]
		if parentPath == "" || !ok {
			forest = append(forest, n)
			continue
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}

	if sortSiblings {
		forest.sortSiblings()
	}
	forest.number()
	return forest
}

// SortByPathTime orders records by hierarchy path, then creation time.
func SortByPathTime(records []session.Record) Forest {
	forest := flat(records)
	sort.SliceStable(forest, func(i, j int) bool {
		a, b := forest[i].Record, forest[j].Record
		if a.HierarchyPath != b.HierarchyPath {
			return a.HierarchyPath < b.HierarchyPath
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	forest.number()
	return forest
}

// SortByTime orders records by creation time.
func SortByTime(records []session.Record) Forest {
	forest := flat(records)
	sort.SliceStable(forest, func(i, j int) bool {
		return forest[i].Record.CreatedAt.Before(forest[j].Record.CreatedAt)
	})
	forest.number()
	return forest
}

func flat(records []session.Record) Forest {
	forest := make(Forest, len(records))
	for i, rec := range records {
		forest[i] = &Node{Record: rec.Normalize(), Index: i}
	}
	return forest
}

// Walk visits the forest depth-first in pre-order, siblings in order. It
// uses an explicit stack, so arbitrarily deep chains are safe. The context
// is checked before every visit; on cancellation Walk returns ctx.Err()
// and the remaining nodes stay unvisited.
func Walk(ctx context.Context, forest Forest, visit func(*Node) Action) error {
	stack := make([]*Node, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, forest[i])
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visit(n) == SkipChildren {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil
}

// Flatten returns every node in pre-order.
func (f Forest) Flatten() []*Node {
	out := make([]*Node, 0, len(f))
	_ = Walk(context.Background(), f, func(n *Node) Action {
		out = append(out, n)
		return Continue
	})
	return out
}

// Len counts all nodes of the forest.
func (f Forest) Len() int {
	return len(f.Flatten())
}

// Subtree returns n and all its descendants in pre-order.
func (n *Node) Subtree() []*Node {
	return Forest{n}.Flatten()
}

// number assigns pre-order sequence numbers and depths.
func (f Forest) number() {
	seq := 0
	_ = Walk(context.Background(), f, func(n *Node) Action {
		n.Seq = seq
		seq++
		if n.Parent != nil {
			n.Depth = n.Parent.Depth + 1
		}
		return Continue
	})
}

func (f Forest) sortSiblings() {
	byTime := func(list []*Node) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Record.CreatedAt.Before(list[j].Record.CreatedAt)
		})
	}
	byTime(f)
	_ = Walk(context.Background(), f, func(n *Node) Action {
		byTime(n.Children)
		return Continue
	})
}
