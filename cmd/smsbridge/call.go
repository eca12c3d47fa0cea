package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cypherspark/sms-bridge/internal/channel"
)

func newCallCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		addr    string
		args    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <method>",
		Short: "Send one call to a running server and print the response",
		Example: `  smsbridge call checkSmsPermission
  smsbridge call getAllSms --addr http://10.0.0.5:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			var callArgs any
			if args != "" {
				callArgs = json.RawMessage(args)
			}
			call, err := channel.NewCall(argv[0], callArgs)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: timeout}
			resp, err := postCall(cmd, client, addr, call)
			if err != nil {
				fmt.Fprintf(stderr, "smsbridge call: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}

			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			switch resp.Status {
			case channel.StatusError:
				fmt.Fprintf(stderr, "smsbridge call: %s: %s\n", resp.Code, resp.Message) //nolint:errcheck // best-effort stderr
				return errExit
			case channel.StatusNotImplemented:
				fmt.Fprintf(stderr, "smsbridge call: method %q not implemented\n", call.Method) //nolint:errcheck // best-effort stderr
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&args, "args", "", "call arguments as a JSON value")
	// requestSmsPermission waits on an operator, so allow plenty of time.
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
	return cmd
}

func postCall(cmd *cobra.Command, client *http.Client, addr string, call channel.MethodCall) (channel.Response, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return channel.Response{}, err
	}
	url := strings.TrimRight(addr, "/") + "/channel/" + channel.Name
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return channel.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return channel.Response{}, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusTooManyRequests {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return channel.Response{}, fmt.Errorf("%s: %s", res.Status, strings.TrimSpace(string(b)))
	}
	return channel.DecodeResponse(res.Body)
}
