package main

import "github.com/endorses/iaxcat/cmd"

func main() {
	cmd.Execute()
}
