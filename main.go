// ./main.go
package main

import (
	"github.com/xkilldash9x/jobagent-cli/cmd"
)

// main is the entry point for the jobagent CLI.
func main() {
	cmd.Execute()
}
