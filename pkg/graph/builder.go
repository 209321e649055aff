package graph

import "fmt"

// Build creates a CSR Graph from arcs in discovery order. Arcs are grouped by
// source node; within a group the discovery order is kept. Every node in
// [0, numNodes) gets an Offsets entry, including nodes without arcs.
func Build(numNodes uint32, arcs []Arc) *Graph {
	numArcs := uint32(len(arcs))
	offsets := make([]uint32, numNodes+1)
	targets := make([]int32, numArcs)
	weights := make([]float64, numArcs)

	// Count arcs per node.
	for _, a := range arcs {
		if a.From >= numNodes || a.To >= numNodes {
			panic(fmt.Sprintf("graph: arc %d->%d outside node range %d", a.From, a.To, numNodes))
		}
		offsets[a.From+1]++
	}
	// Prefix sum.
	for i := uint32(1); i <= numNodes; i++ {
		offsets[i] += offsets[i-1]
	}

	// Place arcs into CSR order.
	pos := make([]uint32, numNodes)
	copy(pos, offsets[:numNodes])
	for _, a := range arcs {
		idx := pos[a.From]
		targets[idx] = int32(a.To)
		weights[idx] = a.Weight
		pos[a.From]++
	}

	return &Graph{
		NumNodes: numNodes,
		NumArcs:  numArcs,
		Offsets:  offsets,
		Targets:  targets,
		Weights:  weights,
	}
}
