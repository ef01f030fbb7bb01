package main

import (
	"github.com/cosreg/regwatch/cmd"
)

func main() {
	cmd.Execute()
}
