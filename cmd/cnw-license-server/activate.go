package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
)

func newActivateCmd() *cobra.Command {
	var (
		serverURL string
		key       string
		machineID string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate this machine against a running license server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if machineID == "" {
				id, err := cnwlicense.MachineID()
				if err != nil {
					return fmt.Errorf("derive machine id: %w", err)
				}
				machineID = id
			}
			client := cnwlicense.NewClient(serverURL,
				cnwlicense.WithMachineID(machineID),
				cnwlicense.WithTimeout(timeout),
			)
			resp, err := client.Activate(cmd.Context(), cnwlicense.ActivateRequest{ProductKey: key})
			switch {
			case errors.Is(err, cnwlicense.ErrKeyNotFound):
				return fmt.Errorf("product key %q is invalid or disabled", key)
			case errors.Is(err, cnwlicense.ErrQuotaExceeded):
				return fmt.Errorf("product key %q has no activations left", key)
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.LicenseKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "license server base URL")
	cmd.Flags().StringVar(&key, "key", "", "product key to activate")
	cmd.Flags().StringVar(&machineID, "machine-id", "", "machine id (default: derived from this host)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
