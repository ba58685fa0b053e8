package graph

import "encoding/json"

// Encode JSON-serializes a graph for persistence (spec.md §3, §8 round-trip law).
func Encode(g *TaskGraph) ([]byte, error) {
	return json.Marshal(g)
}

// Decode restores a graph from its JSON encoding.
func Decode(data []byte) (*TaskGraph, error) {
	var g TaskGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
