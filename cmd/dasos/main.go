package main

import (
	"fmt"
	"os"

	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
