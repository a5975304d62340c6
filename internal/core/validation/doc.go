// Package validation provides pure validation functions for dependency graphs.
//
// This package contains the functional core logic for checking a service graph
// before any plan is produced. All functions are pure (no I/O, no side effects)
// and safe to call repeatedly or concurrently.
//
// # Functions
//
//   - ValidateGraph: Report every cycle and every undeclared dependency
//   - ValidateSelection: Validate only the part of a graph a request touches
//   - FindCycles: Iterative DFS cycle search returning cycle members
//   - CanDeployParallel: Check that no member of a set depends on another
//
// # Usage
//
// Callers treat an invalid result as a hard stop; nothing here repairs a graph:
//
//	res := validation.ValidateGraph(g)
//	if !res.Valid {
//	    return res.Err() // errors.Is(err, domain.ErrCircularDependency) ...
//	}
package validation
