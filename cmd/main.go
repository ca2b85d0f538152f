package main

import (
	"os"

	"github.com/Davidcode-png/QuizBlitz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
