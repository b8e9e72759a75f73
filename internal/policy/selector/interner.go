// Package selector maps tool names and tool classes to integer ids by
// hashing them, so the evaluator's selector matching is an integer set
// lookup rather than a string comparison. The ids are computed on every
// evaluation (the request's tool and classes, and each rule's selector
// name); none are precomputed when a policy is loaded. Policies form a
// shallow DAG (rules reference tools/classes by name, never each other),
// so there is no cycle concern.
package selector

import "github.com/cespare/xxhash/v2"

// ID is an interned tool-name or tool-class identifier.
type ID uint64

// Intern hashes name into its interned ID with xxhash, a fast
// non-cryptographic hash appropriate for this lookup-key role.
func Intern(name string) ID {
	return ID(xxhash.Sum64String(name))
}

// Table resolves a (tool name, tool classes) pair into the set of IDs a
// selector match should consult: the tool's own ID plus each of its
// classes' IDs.
type Table struct{}

// IDsFor returns the interned IDs covering toolName and all toolClasses.
func (Table) IDsFor(toolName string, toolClasses []string) map[ID]struct{} {
	ids := make(map[ID]struct{}, len(toolClasses)+1)
	ids[Intern(toolName)] = struct{}{}
	for _, c := range toolClasses {
		ids[Intern(c)] = struct{}{}
	}
	return ids
}

// Matches reports whether sel (an interned tool or class ID) is present
// in the id set built by IDsFor for a concrete (tool, classes) pair.
func Matches(sel ID, ids map[ID]struct{}) bool {
	_, ok := ids[sel]
	return ok
}
