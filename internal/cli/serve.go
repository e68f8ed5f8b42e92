package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexreview/engine/internal/appdirs"
	"lexreview/engine/internal/document"
	"lexreview/engine/internal/engine"
	"lexreview/engine/internal/envfile"
	"lexreview/engine/internal/envutil"
	"lexreview/engine/internal/logging"
	"lexreview/engine/internal/rpc"
)

var (
	flagDoc   string
	flagEdits string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON-RPC host boundary over stdio",
	Long:  "Serve reads newline-delimited JSON-RPC 2.0 requests on stdin and writes responses on stdout, one object per line. The document host is backed by the files named by --doc and --edits.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			exitCode = ExitRuntimeError
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagDoc, "doc", "", "path to the document text file (required)")
	serveCmd.Flags().StringVar(&flagEdits, "edits", "", "path to the tracked-edits sidecar file (required)")
	_ = serveCmd.MarkFlagRequired("doc")
	_ = serveCmd.MarkFlagRequired("edits")
}

func runServe() error {
	envResult := envfile.Load()
	debug := envutil.Bool("LEXREVIEW_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return err
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	host := document.NewFileHost(flagDoc, flagEdits)
	eng, err := engine.New(host, engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		return err
	}
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.RegisterMethods(server)

	logger.Info("engine.serving", "doc", flagDoc, "edits", flagEdits)
	return server.Serve(context.Background())
}
