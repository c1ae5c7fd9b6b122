package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/msg"
	"github.com/susmicrosystems/Uwuntu-sub002/sem"
	"github.com/susmicrosystems/Uwuntu-sub002/shm"
)

// addIpcCommand adds self-contained demonstrations rather than a client to
// a persistent daemon: each invocation builds a fresh Namespace, performs
// one get+stat cycle, and prints the result. There is no long-lived
// process here for a second invocation to attach to — these namespaces
// are in-process state, not a filesystem-backed registry.
func addIpcCommand(parent *cobra.Command) {
	ipcCmd := &cobra.Command{
		Use:   "ipc",
		Short: "Exercise SysV shared memory, semaphores, and message queues",
	}
	ipcCmd.AddCommand(newShmCmd(), newSemCmd(), newMsgCmd())
	parent.AddCommand(ipcCmd)
}

func cliCred() defs.Cred_t { return defs.Cred_t{Euid: os.Getuid(), Egid: os.Getgid()} }

func newShmCmd() *cobra.Command {
	var size int
	var mode uint32
	cmd := &cobra.Command{
		Use:   "shm",
		Short: "Create a shared memory segment and report its shmid_ds",
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := loadLimits()
			if err != nil {
				return err
			}
			cred := cliCred()
			frames := mem.NewAllocator(limits.VM.PhysPages)
			ns := shm.NewNamespace(frames, limits.Shm)

			id, gerr := ns.Get(0, uintptr(size), shm.IpcCreat|int(mode&0777), cred, 1)
			if gerr != 0 {
				return fmt.Errorf("shmget: %w", gerr)
			}
			st, serr := ns.Stat(id, cred)
			if serr != 0 {
				return fmt.Errorf("shmctl(IPC_STAT): %w", serr)
			}
			printShmStat(cmd, id, st)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 4096, "segment size in bytes")
	cmd.Flags().Uint32Var(&mode, "mode", 0600, "permission bits")
	return cmd
}

func printShmStat(cmd *cobra.Command, id int32, st shm.Stat) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "shmid:  %d\n", id)
	fmt.Fprintf(out, "size:   %d\n", st.Size)
	fmt.Fprintf(out, "nattch: %d\n", st.Nattch)
	fmt.Fprintf(out, "perm:   uid=%d gid=%d mode=%#o\n", st.Perm.Uid, st.Perm.Gid, st.Perm.Mode&0777)
}

func newSemCmd() *cobra.Command {
	var nsems int
	var mode uint32
	cmd := &cobra.Command{
		Use:   "sem",
		Short: "Create a semaphore set and report its semid_ds",
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := loadLimits()
			if err != nil {
				return err
			}
			cred := cliCred()
			ns := sem.NewNamespace(limits.Sem)

			id, gerr := ns.Get(0, nsems, sem.IpcCreat|int(mode&0777), cred)
			if gerr != 0 {
				return fmt.Errorf("semget: %w", gerr)
			}
			st, serr := ns.Stat(id, cred)
			if serr != 0 {
				return fmt.Errorf("semctl(IPC_STAT): %w", serr)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "semid: %d\n", id)
			fmt.Fprintf(out, "nsems: %d\n", st.Nsems)
			fmt.Fprintf(out, "perm:  uid=%d gid=%d mode=%#o\n", st.Perm.Uid, st.Perm.Gid, st.Perm.Mode&0777)
			return nil
		},
	}
	cmd.Flags().IntVar(&nsems, "nsems", 1, "number of semaphores in the set")
	cmd.Flags().Uint32Var(&mode, "mode", 0600, "permission bits")
	return cmd
}

func newMsgCmd() *cobra.Command {
	var mode uint32
	cmd := &cobra.Command{
		Use:   "msg",
		Short: "Create a message queue and report its msqid_ds",
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := loadLimits()
			if err != nil {
				return err
			}
			cred := cliCred()
			ns := msg.NewNamespace(limits.Msg)

			id, gerr := ns.Get(0, msg.IpcCreat|int(mode&0777), cred)
			if gerr != 0 {
				return fmt.Errorf("msgget: %w", gerr)
			}
			st, serr := ns.Stat(id, cred)
			if serr != 0 {
				return fmt.Errorf("msgctl(IPC_STAT): %w", serr)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "msqid:  %d\n", id)
			fmt.Fprintf(out, "qbytes: %d\n", st.Qbytes)
			fmt.Fprintf(out, "perm:   uid=%d gid=%d mode=%#o\n", st.Perm.Uid, st.Perm.Gid, st.Perm.Mode&0777)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&mode, "mode", 0600, "permission bits")
	return cmd
}
