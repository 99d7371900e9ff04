package main

import "github.com/nextlevelbuilder/runloop/cmd"

func main() {
	cmd.Execute()
}
