// Command menace launches the menace terminal agent together with its
// local backend service.
package main

import (
	"os"

	"github.com/menace-cli/menace/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
