package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "entitysync-server",
	Short: "Reference backend for entitysync clients",
	Long: `entitysync-server serves teams, users, collections and projects over
HTTP, persists them through the configured storage driver and issues
upload policies against the configured blob store.

Storage is selected with ENTITYSYNC_STORAGE_DRIVER (memory|sqlite|postgres)
and blobs with ENTITYSYNC_BLOB_DRIVER (fs|s3|memory).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog registers on the standard flag set; mark it parsed so it
		// stops logging "ERROR: logging before flag.Parse".
		return flag.CommandLine.Parse(nil)
	},
}

// Execute runs the root command
func Execute() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}
