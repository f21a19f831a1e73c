package regraph

import (
	"regraph/internal/object"
)

// RefArg selects the references a regraph run will update: either every
// local (non-remote) reference, or an explicit list of names. It is resolved
// once, before any mutation, into concrete (name, target) pairs.
type RefArg struct {
	allLocal bool
	names    []string
}

// AllLocalRefs selects every reference that is not remote-tracking.
func AllLocalRefs() RefArg {
	return RefArg{allLocal: true}
}

// RefList selects exactly the named references.
func RefList(names ...string) RefArg {
	return RefArg{names: names}
}

// resolvedRef is a reference snapshot taken before the rewrite began. The
// target recorded here, not the live one, decides whether the ref is updated.
type resolvedRef struct {
	name   string
	target object.ID
}

func (a RefArg) resolve(refStore RefStore) ([]resolvedRef, error) {
	if a.allLocal {
		all, err := refStore.List()
		if err != nil {
			return nil, err
		}
		resolved := make([]resolvedRef, 0, len(all))
		for _, ref := range all {
			if ref.IsRemote {
				continue
			}
			resolved = append(resolved, resolvedRef{name: ref.Name, target: ref.Target})
		}
		return resolved, nil
	}

	resolved := make([]resolvedRef, 0, len(a.names))
	for _, name := range a.names {
		target, err := refStore.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, resolvedRef{name: name, target: target})
	}
	return resolved, nil
}
