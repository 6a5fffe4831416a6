package checker

import "github.com/homelabforge/tidewatch/internal/model"

// Order topologically sorts containers by their tidewatch.depends_on
// declarations:
// a container is never placed ahead of anything it declares as a
// dependency. Containers with no declared dependencies, or whose
// dependencies aren't in the input set, keep their relative input order
// (a stable Kahn's-algorithm sort) rather than being reordered
// arbitrarily.
func Order(containers []*model.Container) []*model.Container {
	byName := make(map[string]*model.Container, len(containers))
	indexOf := make(map[string]int, len(containers))
	for i, c := range containers {
		byName[c.Name] = c
		indexOf[c.Name] = i
	}

	inDegree := make(map[string]int, len(containers))
	dependents := make(map[string][]string)
	for _, c := range containers {
		inDegree[c.Name] = 0
	}
	for _, c := range containers {
		for _, dep := range c.DependsOn {
			if _, ok := byName[dep]; !ok {
				continue // dependency outside the input set, ignore
			}
			inDegree[c.Name]++
			dependents[dep] = append(dependents[dep], c.Name)
		}
	}

	var ready []string
	for _, c := range containers {
		if inDegree[c.Name] == 0 {
			ready = append(ready, c.Name)
		}
	}

	var order []string
	for len(ready) > 0 {
		// Pop the lowest-original-index ready node to keep the sort stable.
		best := 0
		for i := 1; i < len(ready); i++ {
			if indexOf[ready[i]] < indexOf[ready[best]] {
				best = i
			}
		}
		name := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, name)

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	// A cycle leaves some containers with inDegree > 0 forever; append them
	// in original order rather than dropping them.
	placed := make(map[string]bool, len(order))
	for _, n := range order {
		placed[n] = true
	}
	for _, c := range containers {
		if !placed[c.Name] {
			order = append(order, c.Name)
		}
	}

	out := make([]*model.Container, len(order))
	for i, n := range order {
		out[i] = byName[n]
	}
	return out
}
