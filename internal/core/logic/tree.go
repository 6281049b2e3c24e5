// Package logic provides the append-only audit trail of every reasoning
// path explored: a node per checkpoint with description, outcome and
// parent/child links, independent of branch membership.
package logic

import (
	"fmt"
	"strings"
	"sync"
)

// Outcome labels how a reasoning step ended.
type Outcome string

const (
	OutcomeUnset      Outcome = ""
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Node is one audit-trail entry, keyed by checkpoint id. Parent and
// Children hold ids, not embedded structures: nodes live in the tree's
// flat table and links are lookups, never ownership edges.
type Node struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	CheckpointID string   `json:"checkpoint_id"`
	Children     []string `json:"children,omitempty"`
	Parent       string   `json:"parent,omitempty"`
	Outcome      Outcome  `json:"outcome,omitempty"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning,omitempty"`
}

// Clone deep-copies a node for session export.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Children = make([]string, len(n.Children))
	copy(out.Children, n.Children)
	return &out
}

// Tree is the full decision tree. Nodes are only ever added; evicted
// checkpoints leave their nodes behind.
type Tree struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	rootID string
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// AddNode inserts a node by id. The first node ever inserted becomes the
// root. When the node names a parent that already exists the child link is
// recorded; a missing parent is tolerated — the node is kept, just left
// parentless in the rendering. No cycle detection happens at insertion.
func (t *Tree) AddNode(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID] = n
	if t.rootID == "" {
		t.rootID = n.ID
	}
	if n.Parent != "" {
		if parent, ok := t.nodes[n.Parent]; ok {
			parent.Children = append(parent.Children, n.ID)
		}
	}
}

// Get returns the node for id, or false.
func (t *Tree) Get(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// RootID returns the root node id, or "" for an empty tree.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// Len reports the number of nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// SetOutcome updates a node's outcome. Missing ids are ignored; outcome
// bookkeeping must not fail on nodes that were never recorded.
func (t *Tree) SetOutcome(id string, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.nodes[id]; ok {
		n.Outcome = outcome
	}
}

// PathToRoot walks parent links from id upward and returns the chain in
// root-first order. The walk stops at a missing id or a previously visited
// one, so malformed parent data cannot loop forever.
func (t *Tree) PathToRoot(id string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pathToRootLocked(id)
}

func (t *Tree) pathToRootLocked(id string) []*Node {
	var path []*Node
	visited := make(map[string]bool)
	current := id
	for current != "" && !visited[current] {
		visited[current] = true
		n, ok := t.nodes[current]
		if !ok {
			break
		}
		path = append(path, n)
		current = n.Parent
	}
	// reverse to root-first order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ActivePaths resolves every non-abandoned leaf to its root-first path.
func (t *Tree) ActivePaths() [][]*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var paths [][]*Node
	for id, n := range t.nodes {
		if len(n.Children) == 0 && n.Outcome != OutcomeAbandoned {
			paths = append(paths, t.pathToRootLocked(id))
		}
	}
	return paths
}

// Nodes returns deep copies of every node, keyed by id.
func (t *Tree) Nodes() map[string]*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Node, len(t.nodes))
	for id, n := range t.nodes {
		out[id] = n.Clone()
	}
	return out
}

// Restore replaces the tree contents, used when importing a session.
func (t *Tree) Restore(nodes map[string]*Node, rootID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[string]*Node, len(nodes))
	for id, n := range nodes {
		t.nodes[id] = n.Clone()
	}
	t.rootID = rootID
}

// Visualize renders the tree as indented text, one line per node with an
// outcome marker, description and short id prefix.
func (t *Tree) Visualize() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.rootID == "" {
		return "(empty tree)"
	}
	var lines []string
	t.visualizeNode(t.rootID, &lines, "", true)
	return strings.Join(lines, "\n")
}

func (t *Tree) visualizeNode(id string, lines *[]string, prefix string, isLast bool) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	connector := "├── "
	childPrefix := prefix + "│   "
	if isLast {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	short := n.ID
	if len(short) > 8 {
		short = short[:8]
	}
	*lines = append(*lines, fmt.Sprintf("%s%s%s %s [%s]", prefix, connector, marker(n.Outcome), n.Description, short))
	for i, child := range n.Children {
		t.visualizeNode(child, lines, childPrefix, i == len(n.Children)-1)
	}
}

func marker(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return "[ok]"
	case OutcomeFailure:
		return "[fail]"
	case OutcomeAbandoned:
		return "[drop]"
	case OutcomeInProgress:
		return "[...]"
	default:
		return "[ ]"
	}
}
