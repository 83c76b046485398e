package main

import (
	"log"

	"github.com/herodraft/draft-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
