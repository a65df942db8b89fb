package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FollowRelation binds one follower to one leader with the percentage applied
// to every replicated order size.
type FollowRelation struct {
	LeaderID     string
	FollowerID   string
	ScalePercent decimal.Decimal
}

// FollowGraph is the leader -> followers mapping. It is built once at startup
// and read-only afterwards, so concurrent lookups need no locking.
type FollowGraph struct {
	relations map[string][]FollowRelation
}

// BuildFollowGraph inverts the per-follower "follows" tables from config into
// a per-leader view. The outer key is the follower id, the inner key the
// leader id, the value a percent string like "50%".
func BuildFollowGraph(follows map[string]map[string]string) (*FollowGraph, error) {
	graph := &FollowGraph{relations: make(map[string][]FollowRelation)}

	for followerID, leaders := range follows {
		for leaderID, rawPercent := range leaders {
			percent, err := ParseScalePercent(rawPercent)
			if err != nil {
				return nil, fmt.Errorf("follower %s follows %s: %w", followerID, leaderID, err)
			}

			graph.relations[leaderID] = append(graph.relations[leaderID], FollowRelation{
				LeaderID:     leaderID,
				FollowerID:   followerID,
				ScalePercent: percent,
			})
		}
	}

	return graph, nil
}

// Followers returns the relations for a leader. A leader nobody follows
// returns nil and the caller skips all replication work for it.
func (g *FollowGraph) Followers(leaderID string) []FollowRelation {
	return g.relations[leaderID]
}

// Leaders returns every leader id that has at least one follower.
func (g *FollowGraph) Leaders() []string {
	leaders := make([]string, 0, len(g.relations))
	for leaderID := range g.relations {
		leaders = append(leaders, leaderID)
	}
	return leaders
}

// ParseScalePercent parses a percent string like "50%" (the trailing percent
// sign is optional) into a decimal. The value must be greater than zero.
func ParseScalePercent(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("scale percent is empty")
	}

	percent, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid scale percent %q: %w", raw, err)
	}

	if !percent.GreaterThan(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("scale percent must be greater than zero, got %q", raw)
	}

	return percent, nil
}
