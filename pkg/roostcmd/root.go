package roostcmd

import (
	"context"
	"io"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roostchat/roost/pkg/msgstore"
)

// app is the state shared by every command once the persistent flags are parsed.
type app struct {
	ctx    context.Context
	logger *logrus.Logger
	dbPath string
}

func (a *app) openStore() (*msgstore.Store, error) {
	return msgstore.Open(a.ctx, a.dbPath)
}

func NewRootCmd() *cobra.Command {
	defaults, envErr := LoadEnv()
	a := &app{ctx: context.Background()}
	cmd := &cobra.Command{
		Use:          "roost",
		Short:        "Roost chat relay",
		SilenceUsage: true,
	}
	dbPath := cmd.PersistentFlags().String("db", defaults.DBURL, "path of the sqlite database")
	logLevel := cmd.PersistentFlags().String("log-level", defaults.LogLevel, "one of trace, debug, info, warn, error")
	logFile := cmd.PersistentFlags().String("log-file", defaults.LogFile, "also write logs to this file, rotating it")
	cmd.PersistentPreRunE = func(cmd2 *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		l, err := newLogger(cmd2.ErrOrStderr(), *logLevel, *logFile)
		if err != nil {
			return err
		}
		a.logger = l
		a.ctx = logctx.WithFmtLogger(cmd2.Context(), l)
		a.dbPath = *dbPath
		return nil
	}
	for _, c := range []*cobra.Command{
		newServeCmd(a, defaults),
		newChatCmd(a, defaults),
		newBridgeCmd(a, defaults),
		newHistoryCmd(a),
	} {
		cmd.AddCommand(c)
	}
	return cmd
}

func newLogger(stderr io.Writer, level, file string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(stderr)
	if file != "" {
		l.SetOutput(io.MultiWriter(stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    64,
			MaxBackups: 8,
			MaxAge:     30,
			Compress:   true,
		}))
	}
	return l, nil
}

type readWriteCloser struct {
	read  func([]byte) (int, error)
	write func([]byte) (int, error)
	close func() error
}

func (rwc *readWriteCloser) Read(p []byte) (int, error) {
	return rwc.read(p)
}

func (rwc *readWriteCloser) Write(p []byte) (int, error) {
	return rwc.write(p)
}

func (rwc *readWriteCloser) Close() error {
	return rwc.close()
}

func stdio(cmd *cobra.Command) io.ReadWriteCloser {
	return &readWriteCloser{
		read:  cmd.InOrStdin().Read,
		write: cmd.OutOrStdout().Write,
		close: func() error { return nil },
	}
}
