package main

import "github.com/nextlevelbuilder/agentrt/cmd"

func main() {
	cmd.Execute()
}
