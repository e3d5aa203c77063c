package main

import (
	"os"

	"horse.fit/newsdigest/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
