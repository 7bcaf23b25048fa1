// Command ratnav watches a camera and plays an alert when the scene starts
// or stops moving.
package main

import "github.com/tcolgate/ratnav/cmd/ratnav/cmd"

func main() {
	cmd.Execute()
}
