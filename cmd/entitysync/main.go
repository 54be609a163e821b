package main

import "entitysync/cmd/entitysync/cmd"

func main() {
	cmd.Execute()
}
