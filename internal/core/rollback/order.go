// Package rollback computes teardown orders for partially deployed rollouts.
// This is part of the Functional Core - all functions are pure with no I/O.
package rollback

import (
	"sort"

	"github.com/artpar/waveplan/internal/core/domain"
)

// =============================================================================
// Rollback Order
// =============================================================================

// Order returns the order in which deployed services should be torn down.
//
// Services named in configOrder come first, in list order, restricted to the
// deployed set. Deployed services the list does not mention follow in
// lexicographic order. Duplicates in either input are ignored.
//
// Example:
//
//	Order([]string{"D", "C", "B", "A"}, []string{"A", "B"})
//	// Result: [B A]
func Order(configOrder, deployed []string) []string {
	pending := make(map[string]bool, len(deployed))
	for _, id := range deployed {
		pending[id] = true
	}

	result := make([]string, 0, len(pending))
	for _, id := range configOrder {
		if pending[id] {
			result = append(result, id)
			delete(pending, id)
		}
	}

	rest := make([]string, 0, len(pending))
	for id := range pending {
		rest = append(rest, id)
	}
	sort.Strings(rest)

	return append(result, rest...)
}

// ReverseWaves derives a teardown order from the plan itself, for catalogs
// that declare no rollback list. Later waves are torn down first; within a
// wave services go in reverse lexicographic order. Only deployed services
// are returned, and deployed services absent from every wave come last.
func ReverseWaves(waves []domain.DeploymentWave, deployed []string) []string {
	var order []string
	for i := len(waves) - 1; i >= 0; i-- {
		members := append([]string(nil), waves[i].Services...)
		sort.Sort(sort.Reverse(sort.StringSlice(members)))
		order = append(order, members...)
	}
	return Order(order, deployed)
}

// Resolve picks Order when a configured list exists and ReverseWaves otherwise.
func Resolve(configOrder []string, waves []domain.DeploymentWave, deployed []string) []string {
	if len(configOrder) > 0 {
		return Order(configOrder, deployed)
	}
	return ReverseWaves(waves, deployed)
}
