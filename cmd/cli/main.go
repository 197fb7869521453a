package main

import "eventcast/cmd/cli/command"

func main() {
	command.Execute()
}
