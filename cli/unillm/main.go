package main

import (
	"os"

	unillmcmder "github.com/unillm/unillm/cmd/unillm"
)

func main() {
	cmd := unillmcmder.NewUnillmCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
