package main

import "github.com/edge-toolbox/commissioner/cmd"

func main() {
	cmd.Execute()
}
