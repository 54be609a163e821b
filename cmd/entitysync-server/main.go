package main

import "entitysync/cmd/entitysync-server/cmd"

func main() {
	cmd.Execute()
}
