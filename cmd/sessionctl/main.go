// Command sessionctl logs in to a backend, keeps the access token in a local
// credentials file and sends authenticated requests with it.
package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/goSession/cmd/sessionctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
