package main

import (
	"context"
	"os"

	"github.com/okian/nback/internal/simulate"
)

func main() {
	if err := simulate.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
