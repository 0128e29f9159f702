package main

import (
	"pomon/cmd"
)

func main() {
	cmd.Execute()
}
