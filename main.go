// ./main.go
package main

import (
	"github.com/xkilldash9x/netprobe/cmd"
)

// main is the entry point for the netprobe CLI.
func main() {
	cmd.Execute()
}
