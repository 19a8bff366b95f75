package main

import (
	"fmt"

	merger "github.com/next-exp/drmerge/pkg"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	ConfigFile string
	Verbosity  int
	Config     merger.Configuration
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Verbosity: -1}

	cmd := &cobra.Command{
		Use:           "drmerge",
		Short:         "Merge SiPM and DAQ test-beam streams",
		Long:          "drmerge finds the event offset between the DAQ and the SiPM streams of a run and writes the merged HDF5 file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfiguration()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file path (JSON or YAML)")
	cmd.PersistentFlags().IntVarP(&opts.Verbosity, "verbosity", "v", -1, "verbosity level, overrides the configuration file")

	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewOffsetCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))

	return cmd
}

func (opts *RootOptions) loadConfiguration() error {
	config := merger.DefaultConfiguration()
	if opts.ConfigFile != "" {
		var err error
		config, err = merger.LoadConfiguration(opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("error reading configuration file: %w", err)
		}
	}
	if opts.Verbosity >= 0 {
		config.Verbosity = opts.Verbosity
	}
	opts.Config = config

	merger.SetLogger(logger)
	if config.Verbosity > 0 {
		if opts.ConfigFile != "" {
			logger.Info(fmt.Sprintf("Reading configuration file: %s", opts.ConfigFile), "main")
		}
		merger.PrintConfiguration(config, logger)
	}
	return nil
}
