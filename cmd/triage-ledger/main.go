package main

import (
	"log"

	"github.com/spec-kit/triage-ledger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
