package main

import "github.com/liamgwallace/claude-web/cmd/claude-webctl/commands"

func main() {
	commands.Execute()
}
