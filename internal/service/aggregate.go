package service

import (
	"fmt"
	"strings"

	"github.com/Shree113/newcd/internal/executor"
)

// Aggregate turns a terminal outcome into the single text block the caller
// sees. It never includes paths or raw spawn errors; those only go to logs.
func Aggregate(o executor.Outcome) string {
	switch o.Stage {
	case executor.StageCompileFailed:
		if o.CompileTimedOut {
			return fmt.Sprintf("Compilation Error: compilation timed out after %s", o.Limit)
		}
		return "Compilation Error:\n" + o.Stderr

	case executor.StageTimedOut:
		return fmt.Sprintf("Execution timed out after %s", o.Limit)

	case executor.StageRan:
		if o.ExitCode == nil || *o.ExitCode == 0 {
			return o.Stdout
		}
		var b strings.Builder
		b.WriteString(o.Stdout)
		if o.Stdout != "" && !strings.HasSuffix(o.Stdout, "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Error (exit code %d):\n", *o.ExitCode)
		b.WriteString(o.Stderr)
		return b.String()

	default:
		// Rejected and RuntimeFault carry a user-safe AppError.
		if o.Err != nil {
			return o.Err.Error()
		}
		return "The program could not be executed"
	}
}
