package main

import "github.com/xdsb/airix/cmd/airix/cmd"

func main() {
	cmd.Execute()
}
