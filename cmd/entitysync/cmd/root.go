package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"entitysync/internal/core"
	"entitysync/internal/infra/imaging"
	"entitysync/internal/infra/logging"
	"entitysync/internal/infra/remote/httpclient"
	"entitysync/pkg/domain"
)

// EnvMutationTimeout overrides core.DefaultMutationTimeout, e.g. "45s".
const EnvMutationTimeout = "ENTITYSYNC_MUTATION_TIMEOUT"

var (
	apiURL    string
	userID    string
	timeout   time.Duration
	tracePath string
	session   *core.Session
	traceOut  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "entitysync",
	Short: "Inspect and edit entities through the mutation engine",
	Long: `entitysync loads teams, users, collections and projects from an
entitysync API and edits them through the optimistic mutation engine, so
the same invariant guards apply as in any other client.

The signed-in user is sent as the bearer token. --trace writes one JSON
line per mutation (entity, mutation kind, outcome, duration) to a file,
or to stderr when given "-".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := flag.CommandLine.Parse(nil); err != nil {
			return err
		}
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		s, err := newSession()
		if err != nil {
			return err
		}
		session = s
		return nil
	},
}

// Execute runs the root command
func Execute() {
	defer glog.Flush()
	err := rootCmd.Execute()
	closeTrace()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", os.Getenv(httpclient.EnvAPIURL), "base URL of the entity API")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "id of the signed-in user")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "remote call timeout (default $"+EnvMutationTimeout+" or 30s)")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", `append mutation traces as JSON lines to this file ("-" for stderr)`)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// mutationTimeout resolves the flag, then the environment, then the default.
func mutationTimeout() (time.Duration, error) {
	if timeout > 0 {
		return timeout, nil
	}
	raw := os.Getenv(EnvMutationTimeout)
	if raw == "" {
		return core.DefaultMutationTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", EnvMutationTimeout, raw)
	}
	return d, nil
}

func newSession() (*core.Session, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("no API URL: pass --api or set %s", httpclient.EnvAPIURL)
	}
	d, err := mutationTimeout()
	if err != nil {
		return nil, err
	}
	var opts []httpclient.Option
	if userID != "" {
		opts = append(opts, httpclient.WithBearerToken(userID))
	}
	client, err := httpclient.New(apiURL, opts...)
	if err != nil {
		return nil, err
	}
	engineOpts := []core.EngineOption{core.WithTimeout(d), core.WithLogger(logging.NewGlog("client"))}
	if tracePath != "" {
		w, err := openTrace(tracePath)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, core.WithTracer(core.NewJSONTracer(w)))
	}
	return core.NewSession(core.SessionConfig{
		Client:        client,
		CurrentUserID: userID,
		Transferer:    httpclient.NewPresignedTransferer(httpclient.NewHTTPClient(d), imaging.Resize),
		Derive:        imaging.DominantColor,
	}, engineOpts...), nil
}

func openTrace(path string) (io.Writer, error) {
	if path == "-" {
		return os.Stderr, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	traceOut = f
	return f, nil
}

func closeTrace() {
	if traceOut == nil {
		return
	}
	if err := traceOut.Close(); err != nil {
		glog.Warningf("close trace file: %v", err)
	}
	traceOut = nil
}

// stderrNotifier prints user-facing notifications.
type stderrNotifier struct{}

func (stderrNotifier) Notify(message string, severity domain.NotifySeverity) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", severity, message)
}
