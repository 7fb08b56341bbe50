package main

import "github.com/tanq16/surge/cmd"

func main() {
	cmd.Execute()
}
