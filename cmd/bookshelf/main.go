// Command bookshelf runs the book recommendation API server.
package main

import (
	"log"

	"github.com/patric-chuzhbe/bookshelf/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatal(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Println(err)
	}
}
