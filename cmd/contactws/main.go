package main

import "github.com/ingeweb/contactws/cmd/contactws/commands"

func main() {
	commands.Execute()
}
