// Command procctl drives the process-execution substrate end to end: load
// an ELF image, exercise SysV IPC, and read back the introspection
// streams, all from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/susmicrosystems/Uwuntu-sub002/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
