// Package cli wires config, logging, and the vm/elf/ipc/introspect
// packages into the procctl command tree, grounded in dh-cli's
// src/main.go/internal/cmd root-command wiring: one add*Command(parent)
// function per subcommand family, persistent flags for cross-cutting
// concerns, RunE for the actual work.
package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/logging"
)

var (
	verboseFlag bool
	configFlag  string
)

// Version is set at build time the way dh-cli's is.
var Version = "dev"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "procctl",
		Short:         "Exercise the process-execution substrate",
		Long:          "procctl — load ELF binaries, drive SysV IPC, and read introspection streams against an in-process simulated kernel core.",
		Version:       fmt.Sprintf("procctl v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pflags := root.PersistentFlags()
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "debug-level logging")
	pflags.StringVar(&configFlag, "config", "", "path to a limits TOML file (defaults baked in if omitted)")

	addElfCommand(root)
	addIpcCommand(root)
	addIntrospectCommand(root)
	addDemoCommand(root)

	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

// loadLimits reads the --config file if given, else the compiled-in
// defaults — mirrors config.Load's own fallback but surfaces it to every
// subcommand uniformly.
func loadLimits() (config.Limits, error) {
	if configFlag == "" {
		return config.Default(), nil
	}
	return config.Load(configFlag)
}

func rootLogger() *logrus.Entry {
	return logging.For(logging.New(verboseFlag), "procctl")
}
