package fx

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
)

// SortedNodes returns a DAG sorting of the graph, so the returned nodes can be
// converted in dependency order, each exactly once.
//
// It assumes inputs and constants are given. It panics if some node is not
// reachable from the inputs/constants, which means the graph is malformed
// (a cycle, or an operand produced by no one).
func (g *Graph) SortedNodes() []*Node {
	sortedNodes := make([]*Node, 0, len(g.nodes))

	// Build reverse dependency map from value name to dependant nodes.
	valueToDependants := make(map[string]sets.Set[*Node])
	for _, node := range g.nodes {
		for _, in := range node.Inputs {
			ref, ok := in.(*TensorRef)
			if !ok {
				continue
			}
			deps, found := valueToDependants[ref.Name]
			if !found {
				deps = sets.MakeWith(node)
				valueToDependants[ref.Name] = deps
			} else {
				deps.Insert(node)
			}
		}
	}

	// doneValues includes produced value names; doneNodes the scheduled nodes.
	doneValues := sets.Make[string]()
	doneNodes := sets.Make[*Node]()
	isReady := func(node *Node) bool {
		for _, in := range node.Inputs {
			ref, ok := in.(*TensorRef)
			if !ok {
				continue
			}
			if !doneValues.Has(ref.Name) {
				return false
			}
		}
		return true
	}

	nextDoneScan := sets.Make[string]()
	markDone := func(valueName string) {
		deps, found := valueToDependants[valueName]
		if !found {
			return
		}
		delete(valueToDependants, valueName)
		for dep := range maps.Keys(deps) {
			if doneNodes.Has(dep) {
				continue
			}
			if !isReady(dep) {
				// This dependant still waits on other operands.
				continue
			}
			sortedNodes = append(sortedNodes, dep)
			doneNodes.Insert(dep)
			for _, output := range dep.Outputs {
				doneValues.Insert(output)
				nextDoneScan.Insert(output)
			}
		}
	}

	// Inputs, constants and nodes without tensor operands are trivially done.
	for _, spec := range g.inputs {
		doneValues.Insert(spec.Name)
		nextDoneScan.Insert(spec.Name)
	}
	for _, name := range g.constants {
		doneValues.Insert(name)
		nextDoneScan.Insert(name)
	}
	for _, node := range g.nodes {
		if doneNodes.Has(node) || !isReady(node) {
			continue
		}
		hasTensorOperand := false
		for _, in := range node.Inputs {
			if _, ok := in.(*TensorRef); ok {
				hasTensorOperand = true
				break
			}
		}
		if hasTensorOperand {
			// Scheduled by the scan loop below.
			continue
		}
		sortedNodes = append(sortedNodes, node)
		doneNodes.Insert(node)
		for _, output := range node.Outputs {
			doneValues.Insert(output)
			nextDoneScan.Insert(output)
		}
	}

	// Loop marking nodes as done, collecting nextDoneScan for the next round.
	for len(nextDoneScan) > 0 {
		nextDoneScanSlice := slices.Collect(maps.Keys(nextDoneScan))
		clear(nextDoneScan)
		for _, valueName := range nextDoneScanSlice {
			markDone(valueName)
		}
	}

	if len(sortedNodes) != len(g.nodes) {
		exceptions.Panicf("sorting operator graph %q failed: found %d nodes connected to the inputs, but the graph has %d nodes!?",
			g.name, len(sortedNodes), len(g.nodes))
	}
	return sortedNodes
}
