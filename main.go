package main

import "github.com/m910q/Vale/cmd"

func main() {
	cmd.Execute()
}
