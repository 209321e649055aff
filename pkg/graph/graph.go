package graph

// Arc is one directed edge discovered by the stitcher.
type Arc struct {
	From   uint32
	To     uint32
	Weight float64 // great-circle distance in kilometers
}

// Graph represents a directed graph in CSR (Compressed Sparse Row) format.
type Graph struct {
	NumNodes uint32
	NumArcs  uint32
	Offsets  []uint32  // len: NumNodes + 1; Offsets[i]..Offsets[i+1] are arcs from node i
	Targets  []int32   // len: NumArcs; target node for each arc
	Weights  []float64 // len: NumArcs; distance in kilometers
}

// ArcsFrom returns the range of arc indices for arcs originating from node u.
func (g *Graph) ArcsFrom(u uint32) (start, end uint32) {
	return g.Offsets[u], g.Offsets[u+1]
}
