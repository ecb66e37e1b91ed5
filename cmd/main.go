package main

import (
	"github.com/ostafen/sigscan/cmd/cmd"
)

func main() {
	_ = cmd.Execute()
}
