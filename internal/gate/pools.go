package gate

import "fmt"

// Gate names used in logs and metrics.
const (
	RootGateName  = "root"
	ChildGateName = "child"
)

// PoolsConfig sizes the two gates.
type PoolsConfig struct {
	RootCapacity    int
	RootQueueDepth  int
	ChildCapacity   int
	ChildQueueDepth int
}

// Pools holds the two independent gates. Root bounds root-level fetches (root trees and
// user profiles); Child bounds every individual item fetch inside a tree. A root fetch holds
// its Root slot until its whole subtree finishes, so Child needs the larger capacity.
type Pools struct {
	Root  *Gate
	Child *Gate
}

// NewPools builds both gates.
func NewPools(cfg PoolsConfig) (*Pools, error) {
	root, err := New(RootGateName, cfg.RootCapacity, cfg.RootQueueDepth)
	if err != nil {
		return nil, fmt.Errorf("root gate: %w", err)
	}
	child, err := New(ChildGateName, cfg.ChildCapacity, cfg.ChildQueueDepth)
	if err != nil {
		return nil, fmt.Errorf("child gate: %w", err)
	}
	return &Pools{Root: root, Child: child}, nil
}
