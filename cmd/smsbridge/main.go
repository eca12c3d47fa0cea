package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// errExit signals a failure that was already reported to stderr.
var errExit = errors.New("exit 1")

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(os.Stderr, "smsbridge: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "smsbridge",
		Short: "Serve the device SMS inbox over the sms_tracker/sms channel",
		Long: `smsbridge answers checkSmsPermission, requestSmsPermission and getAllSms
calls for an application layer. Inbox reads are gated on the READ_SMS
capability, which an operator grants or denies through a grants file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("SMSBRIDGE_CONFIG"), "path to YAML config file")

	root.AddCommand(
		newServeCmd(flags, stdout, stderr),
		newCallCmd(stdout, stderr),
		newDecideCmd(flags, true, stdout, stderr),
		newDecideCmd(flags, false, stdout, stderr),
		newPermissionsCmd(flags, stdout, stderr),
	)
	return root
}
