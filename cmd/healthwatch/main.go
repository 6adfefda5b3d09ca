package main

import (
	"os"

	"healthwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
