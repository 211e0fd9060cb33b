// Package main is the entry point for the Argus log analysis engine.
package main

import "argus/cmd"

func main() {
	cmd.Execute()
}
