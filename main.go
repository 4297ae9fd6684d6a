package main

import "calypsocore/cmd"

func main() {
	cmd.Execute()
}
