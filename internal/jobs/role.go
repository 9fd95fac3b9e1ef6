package jobs

import (
	"fmt"
	"strings"
)

// NodeRole says whether this replica runs cluster-wide background work.
// Exactly one replica in a deployment should be the leader.
type NodeRole string

const (
	RoleLeader   NodeRole = "leader"
	RoleFollower NodeRole = "follower"
)

// ParseRole parses a configured role; empty means leader.
func ParseRole(s string) (NodeRole, error) {
	switch NodeRole(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleLeader:
		return RoleLeader, nil
	case RoleFollower:
		return RoleFollower, nil
	default:
		return "", fmt.Errorf("invalid node role %q (must be leader or follower)", s)
	}
}

// IsLeader reports whether leader-only jobs should run here.
func (r NodeRole) IsLeader() bool {
	return r == RoleLeader
}
