// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"strings"
)

// TopicsIndex is a prefix/trie tree of wildcard topic paths and the routes
// which handle them. It is built before the server starts and only read after.
type TopicsIndex struct {
	root *particle // a leaf containing a route and more leaves.
}

// NewTopicsIndex returns a pointer to a new instance of Index.
func NewTopicsIndex() *TopicsIndex {
	return &TopicsIndex{
		root: newParticle("", nil),
	}
}

// Add indexes a route against a topic path filter, returning false if the
// filter is invalid or already has a route.
func (x *TopicsIndex) Add(filter string, r *route) bool {
	if !IsValidFilter(filter) {
		return false
	}

	n := x.set(filter, 0)
	if n.route != nil {
		return false
	}

	n.route = r
	return true
}

// Match returns the route for the most specific filter matching a topic path,
// preferring literal levels over + over #. A trailing # matches one or more
// levels but not its parent.
func (x *TopicsIndex) Match(topic string) *route {
	if len(topic) == 0 {
		return nil
	}

	return x.scan(topic, 0, x.root)
}

// Len returns the number of routes in the index.
func (x *TopicsIndex) Len() int {
	return x.root.count()
}

// set creates or returns the particle at the end of a filter.
func (x *TopicsIndex) set(filter string, d int) *particle {
	var key string
	var hasNext = true
	n := x.root
	for hasNext {
		key, hasNext = isolateParticle(filter, d)
		d++

		p := n.particles[key]
		if p == nil {
			p = newParticle(key, n)
			n.particles[key] = p
		}
		n = p
	}

	return n
}

// scan walks the index for a route matching the topic from depth d.
func (x *TopicsIndex) scan(topic string, d int, n *particle) *route {
	key, hasNext := isolateParticle(topic, d)
	for _, partKey := range []string{key, "+"} {
		p := n.particles[partKey]
		if p == nil {
			continue
		}

		if !hasNext {
			if p.route != nil {
				return p.route
			}
			continue
		}

		if r := x.scan(topic, d+1, p); r != nil {
			return r
		}
	}

	if wild := n.particles["#"]; wild != nil {
		return wild.route
	}

	return nil
}

// isolateParticle extracts a particle between d / and d+1 / without allocations.
func isolateParticle(filter string, d int) (particle string, hasNext bool) {
	var next, end int
	for i := 0; end > -1 && i <= d; i++ {
		end = strings.IndexRune(filter, '/')

		switch {
		case d > -1 && i == d && end > -1:
			hasNext = true
			particle = filter[next:end]
		case end > -1:
			hasNext = false
			filter = filter[end+1:]
		default:
			hasNext = false
			particle = filter[next:]
		}
	}

	return
}

// IsWildcard returns true if a topic path contains wildcard levels.
func IsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "+#")
}

// IsValidFilter returns true if the topic path is non-empty and its wildcards
// occupy whole levels, with # only as the final level.
func IsValidFilter(filter string) bool {
	if len(filter) == 0 {
		return false
	}

	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.ContainsAny(l, "+#") && len(l) > 1 {
			return false
		}

		if l == "#" && i != len(levels)-1 {
			return false
		}
	}

	return true
}

// particle is a child node on the tree.
type particle struct {
	key       string               // the key of the particle
	parent    *particle            // a pointer to the parent of the particle
	particles map[string]*particle // a map of child particles
	route     *route               // the route for a filter ending at this particle
}

// newParticle returns a pointer to a new instance of particle.
func newParticle(key string, parent *particle) *particle {
	return &particle{
		key:       key,
		parent:    parent,
		particles: map[string]*particle{},
	}
}

// count returns the number of routes at or below the particle.
func (p *particle) count() int {
	n := 0
	if p.route != nil {
		n++
	}

	for _, c := range p.particles {
		n += c.count()
	}

	return n
}
