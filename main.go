package main

import "github.com/viktsys/pnldash/cmd"

func main() {
	cmd.Execute()
}
