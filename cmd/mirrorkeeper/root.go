// Package mirrorkeeper contains the Cobra command tree for the mirrorkeeper CLI.
package mirrorkeeper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
)

var (
	// Global flags
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	flagYes     bool
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
)

type runtimeStateKey struct{}

type runtimeState struct {
	colorOutputEnabled bool
	exitCode           int
}

var rootCmd = &cobra.Command{
	Use:           "mirrorkeeper",
	Short:         "Provider-agnostic remote git-mirror sync engine",
	Long:          "mirrorkeeper enumerates repositories across GitHub, GitLab, and Azure DevOps targets and keeps local mirror clones fast-forwarded, without ever pushing, rebasing, or touching a dirty worktree.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// `NO_COLOR` is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagYes, "yes", false, "accept mutating actions without interactive confirmation")
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly exit
// code following the taxonomy: 0 success, 1 unexpected, 2 config or argument
// error, 3 lock held, 4 auth failure, 5 provider transient failure exhausted
// retries, 6 partial failure (at least one target failed).
func ExecuteWithExitCode() int {
	state := &runtimeState{}
	rootCmd.SetContext(context.WithValue(context.Background(), runtimeStateKey{}, state))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeForError(err)
	}
	return state.exitCode
}

// exitCodeForError classifies an error returned from a command's RunE into
// the exit code taxonomy, falling back to 2 (config or argument error) for
// anything not recognized by errtax.
func exitCodeForError(err error) int {
	switch {
	case errors.Is(err, errtax.ErrLocked):
		return 3
	case errors.Is(err, errtax.ErrAuthRejected):
		return 4
	case errors.Is(err, errtax.ErrTransientProvider), errors.Is(err, errtax.ErrRateLimited):
		return 5
	case errors.Is(err, errtax.ErrPartialFailure):
		return 6
	case errors.Is(err, errtax.ErrInvalidArgument):
		return 2
	default:
		// Most errors that reach this top-level boundary are flag parsing,
		// config resolution, or target selection failures rather than a
		// genuine engine bug, so they classify as config/argument errors.
		return 2
	}
}

// raiseExitCode keeps the highest-severity exit code a RunE has reported so
// far this invocation (used when a command finishes without returning an
// error but still wants to report a non-zero outcome, such as `token
// validate` finding a credential its provider rejected).
func raiseExitCode(cmd *cobra.Command, code int) {
	state := runtimeStateFor(cmd)
	if code > state.exitCode {
		state.exitCode = code
	}
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func setColorOutputMode(cmd *cobra.Command, format string) {
	runtimeStateFor(cmd).colorOutputEnabled = shouldUseColorOutput(cmd, format)
}

func shouldUseColorOutput(cmd *cobra.Command, format string) bool {
	if flagNoColor || !isTabularFormat(format) {
		return false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}

func isTabularFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "table", "wide":
		return true
	default:
		return false
	}
}

func runtimeStateFor(cmd *cobra.Command) *runtimeState {
	root := cmd
	if root != nil {
		root = cmd.Root()
	}
	if root == nil {
		root = rootCmd
	}
	ctx := root.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if state, ok := ctx.Value(runtimeStateKey{}).(*runtimeState); ok && state != nil {
		return state
	}
	state := &runtimeState{}
	root.SetContext(context.WithValue(ctx, runtimeStateKey{}, state))
	return state
}
