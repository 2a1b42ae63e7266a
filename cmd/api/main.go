package main

import (
	"context"
	"fmt"
	"os"

	"memo/cmd/api/commands"
)

func main() {
	if err := commands.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "memo:", err)
		os.Exit(1)
	}
}
