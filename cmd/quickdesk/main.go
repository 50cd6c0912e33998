package main

import (
	"log"

	"github.com/quickdesk/quickdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
