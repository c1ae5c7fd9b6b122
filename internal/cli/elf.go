package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/elf"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/memfile"
	"github.com/susmicrosystems/Uwuntu-sub002/vm"
)

// userBase/userSize give every procctl-driven AddressSpace the same
// floating user region; this CLI only ever hosts one process per
// invocation, so there is no multi-process layout to coordinate.
const (
	userBase = 0x10000000
	userSize = 0x40000000
)

func addElfCommand(parent *cobra.Command) {
	elfCmd := &cobra.Command{
		Use:   "elf",
		Short: "Drive the ET_DYN dynamic-binary loader",
	}

	var asInterp bool
	loadCmd := &cobra.Command{
		Use:   "load <path>",
		Short: "Load an ELF image into a fresh AddressSpace and report its layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := loadLimits()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			log := rootLogger()
			frames := mem.NewAllocator(limits.VM.PhysPages)
			as := vm.New(userBase, userSize, frames, vm.NewSimMMU(frames), defs.Cred_t{}, log)

			file := memfile.New(data)
			flags := elf.Flags(0)
			if asInterp {
				flags |= elf.FlagInterp
			}

			info, ferr := elf.NewLoader(log).Load(as, file, flags, limits.VM, nil)
			if ferr != 0 {
				return fmt.Errorf("load %s: %w", args[0], ferr)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entry:       0x%x\n", info.Entry)
			fmt.Fprintf(out, "real entry:  0x%x\n", info.RealEntry)
			fmt.Fprintf(out, "base:        0x%x\n", info.BaseAddr)
			fmt.Fprintf(out, "map:         0x%x + 0x%x\n", info.MapBase, info.MapSize)
			fmt.Fprintf(out, "addr range:  0x%x - 0x%x\n", info.MinAddr, info.MaxAddr)
			fmt.Fprintf(out, "phdr:        0x%x (phnum=%d phent=%d)\n", info.Phaddr, info.Phnum, info.Phent)
			if info.Interp != "" {
				fmt.Fprintf(out, "interp:      %s\n", info.Interp)
			}
			return nil
		},
	}
	loadCmd.Flags().BoolVar(&asInterp, "interp", false, "load as the interpreter target of a PT_INTERP chain")

	elfCmd.AddCommand(loadCmd)
	parent.AddCommand(elfCmd)
}
