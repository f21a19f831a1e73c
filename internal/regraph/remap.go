package regraph

import "regraph/internal/object"

// RemapTable maps pre-edit commit IDs to their rebuilt replacements. It is
// built during a single regraph run and never contains an identity mapping.
type RemapTable map[object.ID]object.ID

// AffectsParents reports whether any of parents has a remapped replacement.
func (t RemapTable) AffectsParents(parents []object.ID) bool {
	for _, p := range parents {
		if _, ok := t[p]; ok {
			return true
		}
	}
	return false
}

// RemapParents substitutes remapped parent IDs, preserving order, length and
// any duplicates; parents without an entry pass through unchanged.
func (t RemapTable) RemapParents(parents []object.ID) []object.ID {
	out := make([]object.ID, len(parents))
	for i, p := range parents {
		if replacement, ok := t[p]; ok {
			out[i] = replacement
		} else {
			out[i] = p
		}
	}
	return out
}
