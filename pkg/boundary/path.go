package boundary

import (
	"slices"

	"github.com/matzehuels/corral/pkg/group"
	"github.com/matzehuels/corral/pkg/nodegraph"
)

// ContextPath returns the group-context path of one wire endpoint: the
// root-first chain of groups the endpoint logically sits in, ending at the
// node's primary group.
//
// Decoration nodes use special rules:
//   - A gate (and the converters feeding it) belongs to its group's parent
//     context; the gate sits on the boundary and is wired from outside.
//   - A proxy belongs to the parent context on its external port and to the
//     group's own context on its internal port. Which port is which depends
//     on the proxy direction: an input proxy receives externally on "in"
//     and feeds the group on "out"; an output proxy is the mirror image.
//   - A placeholder belongs to the parent context.
//
// Endpoints whose group no longer exists resolve to the root context (nil).
func ContextPath(store *group.Store, n nodegraph.Node, port string) []group.ID {
	switch n.Kind {
	case nodegraph.KindGate, nodegraph.KindConverter, nodegraph.KindPlaceholder:
		gid := group.ID(n.GroupTag)
		return parentPath(store, gid)
	case nodegraph.KindProxy:
		if n.Proxy == nil {
			return nil
		}
		gid := group.ID(n.Proxy.Group)
		if proxyPortInternal(n.Proxy.Direction, port) {
			return store.Path(gid)
		}
		return parentPath(store, gid)
	default:
		primary, ok := store.PrimaryGroup(n.ID)
		if !ok {
			return nil
		}
		return store.Path(primary)
	}
}

// proxyPortInternal reports whether the named port is the proxy's
// group-facing side.
func proxyPortInternal(dir nodegraph.PortDirection, port string) bool {
	if dir == nodegraph.DirectionInput {
		return port == nodegraph.ProxyOutPort
	}
	return port == nodegraph.ProxyInPort
}

func parentPath(store *group.Store, gid group.ID) []group.ID {
	p := store.Path(gid)
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// commonPrefixLen returns the length of the longest common prefix of two
// context paths.
func commonPrefixLen(a, b []group.ID) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// pathContains reports whether the context path passes through the group.
func pathContains(path []group.ID, gid group.ID) bool {
	return slices.Contains(path, gid)
}
