package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/viant/fluxflow"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/service/rest"
	"go.uber.org/zap"
)

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fluxflow",
		Short:         "flow orchestration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newCompileCommand(out), newLookupCommand(out))
	return root
}

func newServeCommand() *cobra.Command {
	var configFile, addr string
	var definitions []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the engine with its REST endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fluxflow.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err = logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			srv, err := fluxflow.New(fluxflow.WithConfig(cfg))
			if err != nil {
				return err
			}
			runtime := srv.Runtime()
			ctx := context.Background()
			if err = runtime.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = runtime.Shutdown(ctx) }()
			for _, location := range definitions {
				document, err := os.ReadFile(location)
				if err != nil {
					return err
				}
				if _, err = runtime.Deploy(ctx, document); err != nil {
					return fmt.Errorf("failed to deploy %v: %w", location, err)
				}
			}
			server := rest.NewServer(cfg.Server.Addr, runtime)
			errs := make(chan error, 1)
			go func() { errs <- server.Start() }()
			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err = <-errs:
				return err
			case sig := <-signals:
				logger.Info("shutting down", zap.String("signal", sig.String()))
			}
			return server.Stop()
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (yaml or json)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().StringSliceVarP(&definitions, "definition", "d", nil, "graph documents deployed on start")
	return cmd
}

func newCompileCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file>",
		Short: "Compiles a graph document and prints the definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := compileFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(out, def)
		},
	}
}

func newLookupCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <file> <type>",
		Short: "Prints the path from the outermost ancestor to a type id or name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := compileFile(args[0])
			if err != nil {
				return err
			}
			types := definition.Lookup(def, args[1])
			if len(types) == 0 {
				return fmt.Errorf("type %q not found", args[1])
			}
			for _, node := range types {
				if _, err = fmt.Fprintf(out, "%v\t%v\n", node.ID, node.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func compileFile(location string) (*definition.Definition, error) {
	document, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}
	return fluxflow.Compile(document)
}

func printJSON(out io.Writer, value interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
