package pool

import (
	"time"
)

type NodeState string

const (
	NodeStatePending    NodeState = "pending"
	NodeStateRunning    NodeState = "running"
	NodeStateStopping   NodeState = "stopping"
	NodeStateStopped    NodeState = "stopped"
	NodeStateTerminated NodeState = "terminated"
)

// Node is a read-only snapshot of a remote compute node, as reported by a Provider.
type Node struct {
	ID         string
	Name       string
	Address    string
	Image      string
	Class      string
	State      NodeState
	LaunchedAt time.Time
}

// Filter recognizes the nodes belonging to the pool among all the nodes known to a Provider.
type Filter struct {
	Image string `json:"image"`
	Class string `json:"class"`
}

// Matches reports whether the node is a running node of the filtered image and class.
func (f Filter) Matches(node Node) bool {
	return node.Image == f.Image && node.Class == f.Class && node.State == NodeStateRunning
}
