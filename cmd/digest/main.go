// digest summarizes sales-call transcripts and extracts search metadata for them.
//
// Usage:
//
//	digest run   --bucket <container> --key <object-key>
//	digest batch --bucket <container> [--keys-file <path>] [key ...]
//	digest serve [--addr :8080]
//	digest watch [--inbox data/inbox]
//	digest version
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
