package roostcmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/roostclient"
)

func newChatCmd(a *app, defaults Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat from the terminal. Lines from stdin are sent, \"/image <path>\" sends an image",
		Args:  cobra.NoArgs,
	}
	cf := addClientFlags(cmd, defaults)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := a.ctx
		out := &lockedWriter{w: cmd.OutOrStdout()}
		sink := roostclient.SinkFunc(func(m message.Message) {
			printMessage(out, m)
		})
		e, store, err := a.connect(cf, sink, nil)
		if err != nil {
			return err
		}
		defer store.Close()
		defer e.Close()
		if err := e.Start(ctx); err != nil {
			return err
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scn := bufio.NewScanner(cmd.InOrStdin())
			for scn.Scan() {
				lines <- scn.Text()
			}
		}()
		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return e.Wait()
		})
		eg.Go(func() error {
			defer e.Close()
			for {
				var line string
				var ok bool
				select {
				case line, ok = <-lines:
				case <-ctx.Done():
					return nil
				}
				if !ok {
					return nil
				}
				m, err := parseLine(*cf.username, line)
				if err != nil {
					fmt.Fprintln(out, err)
					continue
				}
				if m == nil {
					continue
				}
				if err := e.Send(ctx, *m); err != nil {
					return err
				}
				printMessage(out, *m)
			}
		})
		return eg.Wait()
	}
	return cmd
}

// parseLine turns a line of input into a message. Blank lines produce nothing.
func parseLine(username, line string) (*message.Message, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	now := message.Now()
	if path, ok := strings.CutPrefix(line, "/image "); ok {
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		m := message.NewImage(username, now, data)
		return &m, nil
	}
	m := message.NewText(username, now, line)
	return &m, nil
}

func printMessage(w io.Writer, m message.Message) {
	fmt.Fprintf(w, "%s %s:\t%v\n", m.Timestamp.Time().Format("15:04:05"), m.Author, m.Payload)
}

// lockedWriter serializes writes from the listener and the input loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
