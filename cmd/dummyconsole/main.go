package main

import (
	"os"
	"time"

	"github.com/TheGojiOG/serverhost/internal/dummyconsole"
)

func main() {
	os.Exit(dummyconsole.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, idle))
}

func idle() {
	for {
		time.Sleep(time.Hour)
	}
}
