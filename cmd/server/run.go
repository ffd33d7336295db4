package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shree113/newcd/internal/executor"
	"github.com/Shree113/newcd/internal/service"
)

var languageFlag string

var runCmd = &cobra.Command{
	Use:   "run --language KEY FILE",
	Short: "Execute one source file and print the result",
	Long: `Run FILE through the same dispatcher the HTTP API uses and print the
aggregated output. Use "-" to read the source from stdin. Nothing is written
to the execution history.

The command exits non-zero unless the program compiled, ran and exited 0.

Examples:
  server run --language python hello.py
  echo 'int main(){return 3;}' | server run --language c -`,
	Args: cobra.ExactArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Language key (see \"server languages\")")
	_ = runCmd.MarkFlagRequired("language")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, newLogger(true), false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.service.Execute(cmd.Context(), service.Request{
		Code:     source,
		Language: languageFlag,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, resp.Output)
	if resp.Output != "" && resp.Output[len(resp.Output)-1] != '\n' {
		fmt.Fprintln(out)
	}

	if resp.Stage != executor.StageRan || resp.ExitCode == nil || *resp.ExitCode != 0 {
		return fmt.Errorf("execution finished with stage %s", resp.Stage)
	}
	return nil
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(io.LimitReader(stdin, service.MaxCodeLength+1))
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(b), nil
}
