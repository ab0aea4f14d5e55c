package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Node IDs per process kind so ids minted by tarsctl and the server never collide.
const (
	NodeServer int64 = 1
	NodeCLI    int64 = 3
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 run ID.
// Falls back to node 0 when Init was never called (tests, tooling).
func New() int64 {
	once.Do(func() {
		node, _ = snowflake.NewNode(0)
	})
	return node.Generate().Int64()
}
