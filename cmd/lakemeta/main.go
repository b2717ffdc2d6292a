// Command lakemeta inspects column statistics and record keys of Parquet
// data lake files.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/lakemeta/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
