package main

import (
	"os"

	"github.com/conneroisu/prmake/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
