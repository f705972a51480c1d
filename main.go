package main

import "github.com/audiolibrelab/jamclick/cmd"

func main() {
	cmd.Execute()
}
