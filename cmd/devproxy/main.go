// Package main is the entry point for devproxy.
package main

import "github.com/dskow/devproxy/internal/cli"

func main() {
	cli.Execute()
}
