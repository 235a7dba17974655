package main

import "github.com/SeiyonArulampalam/tacs/cmd"

func main() {
	cmd.Execute()
}
