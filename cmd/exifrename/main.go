package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/exif-renamer/cmd/exifrename/lib"
	"github.com/user/exif-renamer/pkg"
)

var version = "0.1.0"

// caseInsensitiveFlags are accepted in any letter case, e.g. --HELP or -N.
var caseInsensitiveFlags = []string{"--help", "-h", "--dry-run", "-n", "--verbose", "-v"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(exifrename.DefaultDeps())
	cmd.SetArgs(normalizeArgs(args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, pkg.ErrNotADirectory) {
			fmt.Fprintln(stdout, "Provided path is not a folder.")
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// normalizeArgs lower-cases the flags that are matched case-insensitively.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		for _, flag := range caseInsensitiveFlags {
			if strings.EqualFold(arg, flag) {
				out[i] = flag
				break
			}
		}
	}
	return out
}

func newRootCmd(deps exifrename.Deps) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "exifrename <folder_path>",
		Short:         "Rename JPEG files after their EXIF capture time",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				printUsage(cmd)
				return nil
			}

			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := pkg.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Folder = args[0]

			deps.Out = cmd.OutOrStdout()
			_, err = exifrename.Run(cmd.Context(), cfg, deps)
			return err
		},
	}

	defaults := pkg.DefaultConfig()
	flags := cmd.Flags()
	flags.BoolP("dry-run", "n", false, "Do not rename anything, only print planned changes.")
	flags.BoolP("verbose", "v", false, "Log every step to stderr.")
	flags.IntP("workers", "w", defaults.Workers, "Number of concurrent metadata readers.")
	flags.String("prefix", defaults.Prefix, "Prefix of the generated names.")
	flags.String("report", "", "Write a YAML run report to this file.")
	flags.Bool("checksum", false, "Record a SHA-256 of every file in the run report.")
	flags.StringVar(&configPath, "config", "", "Read settings from this YAML config file.")

	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		printUsage(c)
	})
	return cmd
}

func printUsage(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  exifrename <folder_path> [--dry-run|-n]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	fmt.Fprint(out, cmd.Flags().FlagUsages())
}
