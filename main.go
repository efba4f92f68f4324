package main

import "github.com/Thalpy/stoat-ai-interface/cmd"

func main() {
	cmd.Execute()
}
