// Command calyx runs the crisis-conversation gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanchita-suni/Calyx/internal/dotenv"
)

// version is set at build time.
var version = "dev"

func newRootCmd(stderr io.Writer, deps serveDeps) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "calyx",
		Short:         "Calyx real-time safety companion gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return dotenv.LoadFile(envFile)
		},
	}
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(newServeCmd(stderr, deps))
	root.AddCommand(newMigrateCmd(stderr, deps))
	return root
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps serveDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	root := newRootCmd(stderr, deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "calyx: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stderr, defaultServeDeps()))
}
