package main

import "github.com/nivaasika/nivaasika-engine/cmd"

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cmd.Execute(Version)
}
