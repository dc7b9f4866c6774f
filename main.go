package main

import "github.com/veildb/veildb/cmd"

func main() {
	cmd.Execute()
}
