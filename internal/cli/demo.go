package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/ipcns"
	"github.com/susmicrosystems/Uwuntu-sub002/msg"
	"github.com/susmicrosystems/Uwuntu-sub002/sem"
)

// settleDelay gives a scenario's blocking goroutine time to actually reach
// its wait point before the scenario's unblocking step runs; these demos
// run a handful of times per invocation, not in a tight loop, so a fixed
// delay is simpler than a synchronization channel for each step.
const settleDelay = 20 * time.Millisecond

type scenario struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// addDemoCommand runs the worked concurrency scenarios spec.md §8
// describes (S2 semaphore transaction atomicity, S3 msg selective
// receive, S6 message NOWAIT/removal wakeup) against the real sem/msg
// packages and reports pass/fail, driven concurrently via errgroup the
// way a scripted exploration session would fire several probes at once.
func addDemoCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the S2/S3/S6 concurrency scenarios and report the result of each",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := []scenario{
				{"S2 semaphore transaction atomicity", runS2},
				{"S3 msg selective receive", runS3},
				{"S6 message NOWAIT and removal wakeup", runS6},
			}
			results := make([]string, len(scenarios))

			g, ctx := errgroup.WithContext(context.Background())
			for i, s := range scenarios {
				i, s := i, s
				g.Go(func() error {
					detail, err := s.run(ctx)
					if err != nil {
						results[i] = fmt.Sprintf("FAIL %s: %v", s.name, err)
						return nil
					}
					results[i] = fmt.Sprintf("PASS %s: %s", s.name, detail)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := false
			for _, r := range results {
				fmt.Fprintln(out, r)
				if len(r) >= 4 && r[:4] == "FAIL" {
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more scenarios failed")
			}
			return nil
		},
	}
	parent.AddCommand(cmd)
}

func runS2(ctx context.Context) (string, error) {
	limits := config.Default()
	ns := sem.NewNamespace(limits.Sem)
	cred := defs.Cred_t{}

	id, err := ns.Get(ipcns.IPCPrivate, 2, sem.IpcCreat|0600, cred)
	if err != 0 {
		return "", err
	}

	done := make(chan defs.Err_t, 1)
	go func() {
		done <- ns.Op(ctx, id, []sem.Op{{Num: 0, Delta: -1}, {Num: 1, Delta: -1}}, cred, 1)
	}()
	time.Sleep(settleDelay)

	if err := ns.Op(ctx, id, []sem.Op{{Num: 1, Delta: 5}}, cred, 2); err != 0 {
		return "", err
	}
	if err := ns.Op(ctx, id, []sem.Op{{Num: 0, Delta: 1}}, cred, 2); err != 0 {
		return "", err
	}
	if err := <-done; err != 0 {
		return "", err
	}

	vals, verr := ns.GetAll(id, cred)
	if verr != 0 {
		return "", verr
	}
	if vals[0] != 0 || vals[1] != 4 {
		return "", fmt.Errorf("want sem0=0 sem1=4, got sem0=%d sem1=%d", vals[0], vals[1])
	}
	return fmt.Sprintf("sem0=%d sem1=%d", vals[0], vals[1]), nil
}

func runS3(ctx context.Context) (string, error) {
	limits := config.Default()
	ns := msg.NewNamespace(limits.Msg)
	cred := defs.Cred_t{}

	id, err := ns.Get(ipcns.IPCPrivate, msg.IpcCreat|0600, cred)
	if err != 0 {
		return "", err
	}
	for _, m := range []struct {
		typ  int64
		data string
	}{{1, "a"}, {2, "bb"}, {1, "ccc"}} {
		if serr := ns.Send(ctx, id, m.typ, []byte(m.data), false, cred, 1); serr != 0 {
			return "", serr
		}
	}

	b1, t1, e1 := ns.Recv(ctx, id, 2, 4, false, false, false, cred, 1)
	if e1 != 0 {
		return "", e1
	}
	if t1 != 2 || string(b1) != "bb" {
		return "", fmt.Errorf("want (2,\"bb\"), got (%d,%q)", t1, b1)
	}

	b2, t2, e2 := ns.Recv(ctx, id, -1, 4, false, false, false, cred, 1)
	if e2 != 0 {
		return "", e2
	}
	if t2 != 1 || string(b2) != "a" {
		return "", fmt.Errorf("want (1,\"a\"), got (%d,%q)", t2, b2)
	}
	return fmt.Sprintf("recv1=(%d,%q) recv2=(%d,%q)", t1, b1, t2, b2), nil
}

func runS6(ctx context.Context) (string, error) {
	limits := config.Default()
	limits.Msg.DefaultQBytes = 16
	ns := msg.NewNamespace(limits.Msg)
	cred := defs.Cred_t{}

	id, err := ns.Get(ipcns.IPCPrivate, msg.IpcCreat|0600, cred)
	if err != 0 {
		return "", err
	}

	if serr := ns.Send(ctx, id, 1, make([]byte, 10), false, cred, 1); serr != 0 {
		return "", serr
	}
	if serr := ns.Send(ctx, id, 1, make([]byte, 10), true, cred, 1); serr != defs.Again {
		return "", fmt.Errorf("want Again from a NOWAIT send past the byte budget, got %v", serr)
	}

	blockDone := make(chan defs.Err_t, 1)
	go func() {
		blockDone <- ns.Send(context.Background(), id, 1, make([]byte, 10), false, cred, 1)
	}()
	time.Sleep(settleDelay)

	if rerr := ns.Remove(id, cred); rerr != 0 {
		return "", rerr
	}
	if got := <-blockDone; got != defs.IdRemoved {
		return "", fmt.Errorf("want IdRemoved from the blocked sender after IPC_RMID, got %v", got)
	}
	return "NOWAIT returned Again; blocked sender woke with IdRemoved on removal", nil
}
