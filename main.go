package main

import "github.com/timvw/shotlens/cmd"

func main() {
	cmd.Execute()
}
