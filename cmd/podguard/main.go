// Command podguard runs the pod containment and data loss prevention
// service and its operator tooling.
package main

import "github.com/ppiankov/podguard/internal/cli"

func main() {
	cli.Execute()
}
