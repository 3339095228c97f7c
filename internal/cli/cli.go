package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/pipestack/internal/app"
	"github.com/vk/pipestack/internal/hcl_adapter"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 2, Message: err.Error()}
}

// usageArgs turns argument validation failures into usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// globalOptions are the flags shared by every command.
type globalOptions struct {
	stackPaths []string
	vars       []string
	logLevel   string
	logFormat  string
}

// newApp validates the global flags and creates the app. Invalid flags are
// usage errors.
func (o *globalOptions) newApp(outW, errW io.Writer) (*app.App, error) {
	overrides, err := hcl_adapter.ParseOverrides(o.vars)
	if err != nil {
		return nil, usageError(err)
	}
	cfg, err := app.NewConfig(app.Config{
		StackPaths: o.stackPaths,
		LogFormat:  o.logFormat,
		LogLevel:   o.logLevel,
	})
	if err != nil {
		return nil, usageError(err)
	}
	loader := hcl_adapter.NewLoader(hcl_adapter.WithVariables(overrides))
	return app.NewApp(outW, errW, cfg, loader), nil
}

// NewRootCommand builds the command tree. Command output goes to outW, logs
// and usage text to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pipestack",
		Short: "Declarative delivery pipeline stacks.",
		Long: `pipestack turns HCL stack files describing an artifact bucket, a source
repository, a build project and a delivery pipeline into a CloudFormation
cloud assembly, ready to be published and deployed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringArrayVarP(&opts.stackPaths, "stack", "s", []string{"."}, "Stack file or directory of .hcl files; repeatable.")
	flags.StringArrayVar(&opts.vars, "var", nil, "Set a stack variable as name=value; repeatable.")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	root.AddCommand(
		newSynthCommand(opts, outW, errW),
		newValidateCommand(opts, outW, errW),
		newGraphCommand(opts, outW, errW),
		newListCommand(opts, outW, errW),
		newInitCommand(opts, outW, errW),
		newPublishCommand(opts, outW, errW),
	)
	return root
}

// Execute runs the command line and returns the error to exit with.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return usageError(fmt.Errorf("%w; run 'pipestack --help' for usage", err))
	}
	return err
}
