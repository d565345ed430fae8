package main

import (
	"fmt"
	"os"

	"github.com/danmuck/wheelctl/internal/config"
	"github.com/danmuck/wheelctl/internal/gate"
	"github.com/danmuck/wheelctl/internal/workflow"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	yes        bool
	deps       workflow.Deps
}

func newRootCmd(deps workflow.Deps) *cobra.Command {
	opts := &options{deps: deps}

	root := &cobra.Command{
		Use:           "wheelctl",
		Short:         "Provision a python namespace, fetch wheels and install them offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          opts.runWorkflow,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "wheelctl config file")
	root.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "skip confirmation gates")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the full workflow (default)",
			Args:  cobra.NoArgs,
			RunE:  opts.runWorkflow,
		},
		newProvisionCmd(opts),
		newFetchCmd(opts),
		newInstallCmd(opts),
		newListCmd(opts),
		newTeardownCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *options) load(cmd *cobra.Command) (workflow.Config, error) {
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(o.configPath, explicit)
	if err != nil {
		return workflow.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return workflow.Config{}, err
	}
	return cfg, nil
}

func (o *options) workflow(cmd *cobra.Command, cfg workflow.Config, gated bool) (*workflow.Workflow, error) {
	deps := o.deps
	if deps.Stdout == nil {
		deps.Stdout = cmd.OutOrStdout()
	}
	if deps.Stderr == nil {
		deps.Stderr = cmd.ErrOrStderr()
	}
	if deps.Gate == nil {
		deps.Gate = gate.Auto{}
		if gated {
			deps.Gate = gate.ForTerminal(cfg.Confirm && !o.yes, os.Stdin, cmd.ErrOrStderr())
		}
	}
	return workflow.New(cfg, deps)
}

func (o *options) runWorkflow(cmd *cobra.Command, _ []string) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}
	w, err := o.workflow(cmd, cfg, true)
	if err != nil {
		return err
	}
	report, err := w.Run(cmd.Context())
	if report != nil {
		report.Summary(cmd.OutOrStdout())
	}
	return err
}

func newProvisionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			w, err := opts.workflow(cmd, cfg, false)
			if err != nil {
				return err
			}
			if err := w.Provision(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s\n", cfg.Namespace)
			return nil
		},
	}
}

func newFetchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download manifest archives into the artifact directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			w, err := opts.workflow(cmd, cfg, false)
			if err != nil {
				return err
			}
			if !w.ActivateIfPresent() {
				log.Info().Str("component", "cli").Msgf("wheelctl.fetch namespace=%s absent, using %s", cfg.Namespace, cfg.Python)
			}
			res, path, err := w.Fetch(cmd.Context())
			if err != nil {
				log.Warn().Str("component", "cli").Err(err).Msg("wheelctl.fetch incomplete")
			}
			report := &workflow.Report{Fetch: res, ScriptPath: path, ArtifactDir: cfg.ArtifactDir, Calls: w.Stats()}
			if report.Archives, err = w.Archives(); err != nil {
				return err
			}
			report.Summary(cmd.OutOrStdout())
			return w.WriteMetrics()
		},
	}
}

func newInstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install every archive into the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			w, err := opts.workflow(cmd, cfg, false)
			if err != nil {
				return err
			}
			if err := w.Activate(); err != nil {
				return err
			}
			defer w.Deactivate()
			res, err := w.Install(cmd.Context())
			if err != nil {
				log.Warn().Str("component", "cli").Err(err).Msg("wheelctl.install incomplete")
			}
			report := &workflow.Report{Install: res, ArtifactDir: cfg.ArtifactDir, Calls: w.Stats()}
			report.Summary(cmd.OutOrStdout())
			return w.WriteMetrics()
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List packages installed in the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			w, err := opts.workflow(cmd, cfg, false)
			if err != nil {
				return err
			}
			if err := w.Activate(); err != nil {
				return err
			}
			defer w.Deactivate()
			_, err = w.Inventory(cmd.Context())
			return err
		},
	}
}

func newTeardownCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Delete the namespace directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			w, err := opts.workflow(cmd, cfg, false)
			if err != nil {
				return err
			}
			if err := w.Teardown(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cfg.Namespace)
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "Manage wheelctl config files"}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", config.DefaultPath, "output path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Strictly decode and validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.ValidateFile(path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s (namespace=%s artifact_dir=%s manifests=%d mode=%s)\n",
				path, cfg.Namespace, cfg.ArtifactDir, len(cfg.Manifests), cfg.Fetch.Mode)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, validateCmd)
	return configCmd
}
