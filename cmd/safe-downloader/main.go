package main

import (
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(execute(os.Args[1:]))
}
