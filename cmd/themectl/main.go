// Command themectl runs the review theme pipeline against local files and
// submits review batches to the worker.
//
// Usage:
//
//	go run ./cmd/themectl run reviews.csv -k 5
//	go run ./cmd/themectl sweep reviews.csv --ks 3,4,5,6
package main

func main() {
	Execute()
}
