// Command emberd runs the HTTP origin server: load a config file, bind
// its listeners, and serve until interrupted.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/engine"
	"github.com/yourusername/ember/pkg/ember/errpage"
	"github.com/yourusername/ember/pkg/ember/socket"
)

// Exit codes.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitBindFailure  = 2
	exitRuntimeFatal = 3
)

var verbose bool

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitRuntimeFatal)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emberd [config-file]",
		Short: "emberd serves static files, CGI scripts, and uploads over HTTP/1.1",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	path := "config/default.conf"
	if len(args) == 1 {
		path = args[0]
	}

	log, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	servers, err := config.Load(path)
	if err != nil {
		log.Error("config load failed", zap.String("path", path), zap.Error(err))
		os.Exit(exitConfigError)
	}

	errorPages, err := errpage.Load(collectErrorPages(servers))
	if err != nil {
		log.Error("error page load failed", zap.Error(err))
		os.Exit(exitConfigError)
	}

	tempDir, err := os.MkdirTemp("", "emberd-")
	if err != nil {
		log.Error("temp dir create failed", zap.Error(err))
		os.Exit(exitRuntimeFatal)
	}
	defer os.RemoveAll(tempDir)

	eng, err := engine.New(servers, errorPages, engine.Config{
		ServerIdent:     "ember",
		TempDir:         tempDir,
		SessionTTL:      30 * time.Minute,
		CGITimeout:      30 * time.Second,
		CGIGraceTimeout: time.Second,
		DrainTimeout:    5 * time.Second,
		Socket:          socket.DefaultConfig(),
	}, log)
	if err != nil {
		log.Error("bind failed", zap.Error(err))
		os.Exit(exitBindFailure)
	}

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		close(stop)
	}()

	if err := eng.Run(stop); err != nil {
		log.Error("engine stopped with error", zap.Error(err))
		os.Exit(exitRuntimeFatal)
	}
	return nil
}

// newLogger builds the process logger: a terse console encoder, debug
// level only under -v.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func collectErrorPages(servers []*config.ServerConfig) map[int]string {
	pages := make(map[int]string)
	for _, sc := range servers {
		for code, path := range sc.ErrorPages {
			pages[code] = path
		}
	}
	return pages
}

