package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Shree113/newcd/internal/config"
	"github.com/Shree113/newcd/internal/language"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List configured languages and whether their toolchains are installed",
	Args:  cobra.NoArgs,
	RunE:  listLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func listLanguages(cmd *cobra.Command, args []string) error {
	opts := []language.Option{}
	if cfg.Executor.Backend == config.BackendDocker {
		opts = append(opts, language.WithLookPath(func(string) (string, error) { return "", nil }))
	}
	reg, err := language.NewRegistry(cfg.Profiles(), opts...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tFILE\tCOMPILE\tRUN\tAVAILABLE")
	for _, p := range reg.Profiles() {
		compile := "-"
		if p.Compiled() {
			compile = fmt.Sprintf("%s (%s)", strings.Join(p.CompileCommand, " "), p.CompileTimeout)
		}
		run := fmt.Sprintf("%s (%s)", strings.Join(p.RunCommand, " "), p.RunTimeout)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.Key, p.SourceFileName(), compile, run, reg.ToolchainAvailable(p))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	maxOutput, err := cfg.MaxOutputBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nbackend: %s, output cap: %s per stream\n", cfg.Executor.Backend, humanize.IBytes(uint64(maxOutput)))
	return nil
}
