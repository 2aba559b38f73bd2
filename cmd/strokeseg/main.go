// Package main is the entrypoint for the strokeseg binary: the
// segmentation API server plus dataset and pipeline tooling.
package main

func main() {
	Execute()
}
