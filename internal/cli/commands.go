package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vk/pipestack/internal/app"
	"github.com/vk/pipestack/internal/publish"
	"github.com/vk/pipestack/internal/scaffold"
	"github.com/vk/pipestack/internal/synth"
)

var errNoURLs = errors.New("publish needs --url or --urls-file")

func addOutputFlag(fs *pflag.FlagSet, target *string, what string) {
	fs.StringVar(target, "output", app.OutputTable, "Output the "+what+" as table, json or yaml.")
}

func newSynthCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var outDir, format string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Validate the stack and write its cloud assembly.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := synth.ParseFormat(format)
			if err != nil {
				return usageError(err)
			}
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			_, err = a.Synth(cmd.Context(), app.SynthOptions{OutDir: outDir, Format: f})
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", app.DefaultOutDir, "Directory the cloud assembly is written to.")
	cmd.Flags().StringVar(&format, "format", string(synth.FormatJSON), "Template format. Options: 'json' or 'yaml'.")
	return cmd
}

func newValidateCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the stack against the pipeline rules.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := app.ParseOutput(output)
			if err != nil {
				return usageError(err)
			}
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			_, err = a.Validate(cmd.Context(), out)
			return err
		},
	}
	addOutputFlag(cmd.Flags(), &output, "findings")
	return cmd
}

func newGraphCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var dot bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the resource dependency graph.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			return a.Graph(cmd.Context(), dot)
		},
	}
	cmd.Flags().BoolVar(&dot, "dot", false, "Print the graph in Graphviz DOT format.")
	return cmd
}

func newListCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the resources of the stack in creation order.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := app.ParseOutput(output)
			if err != nil {
				return usageError(err)
			}
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			_, err = a.List(cmd.Context(), out)
			return err
		},
	}
	addOutputFlag(cmd.Flags(), &output, "resources")
	return cmd
}

func newInitCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var so scaffold.Options
	dir := "."
	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a starter stack file.",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				dir = args[0]
			}
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			_, err = a.Init(cmd.Context(), dir, so)
			return err
		},
	}
	cmd.Flags().StringVar(&so.StackName, "name", "", "Name of the stack. (default \"PipelineStack\")")
	cmd.Flags().StringVar(&so.RepositoryName, "repository-name", "", "Default name of the source repository. (default \"java-project\")")
	cmd.Flags().StringVar(&so.AssetPath, "asset", "", "Zip file the repository is seeded from. (default \"java-project.zip\")")
	cmd.Flags().BoolVar(&so.Admin, "admin", false, "Attach AdministratorAccess to the service roles.")
	cmd.Flags().BoolVar(&so.Force, "force", false, "Overwrite an existing stack file.")
	return cmd
}

func newPublishCommand(opts *globalOptions, outW, errW io.Writer) *cobra.Command {
	var po app.PublishOptions
	var urls []string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the assets of a cloud assembly to pre-signed URLs.",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := publish.ParseURLs(urls)
			if err != nil {
				return usageError(err)
			}
			po.URLs = parsed
			if len(po.URLs) == 0 && po.URLsFile == "" {
				return usageError(errNoURLs)
			}
			a, err := opts.newApp(outW, errW)
			if err != nil {
				return err
			}
			_, err = a.Publish(cmd.Context(), po)
			return err
		},
	}
	cmd.Flags().StringVar(&po.AssemblyDir, "assembly", app.DefaultOutDir, "Cloud assembly directory written by synth.")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "Upload URL as objectKey=url; repeatable.")
	cmd.Flags().StringVar(&po.URLsFile, "urls-file", "", "JSON or YAML file mapping object keys to upload URLs.")
	return cmd
}
