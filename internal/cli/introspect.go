package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/susmicrosystems/Uwuntu-sub002/introspect"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/msg"
	"github.com/susmicrosystems/Uwuntu-sub002/sem"
	"github.com/susmicrosystems/Uwuntu-sub002/shm"
)

func addIntrospectCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Print the read-only limits and meminfo streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := loadLimits()
			if err != nil {
				return err
			}
			frames := mem.NewAllocator(limits.VM.PhysPages)
			streams := introspect.New(
				shm.NewNamespace(frames, limits.Shm),
				sem.NewNamespace(limits.Sem),
				msg.NewNamespace(limits.Msg),
				frames,
				limits,
			)

			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(streams.LimitsDump()))
			fmt.Fprint(out, string(streams.MeminfoStream()))
			return nil
		},
	}
	parent.AddCommand(cmd)
}
