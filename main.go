package main

import "github.com/nethalo/dumpchunk/cmd"

func main() {
	cmd.Execute()
}
