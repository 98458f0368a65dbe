package main

import (
	"os"

	"tidewatch.in/hazard/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
