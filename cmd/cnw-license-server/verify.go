package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense"
	"github.com/CloudNativeWorks/cnw-license-server/internal/config"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <credential>",
		Short: "Verify a credential with the configured signing secret and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Signing.Secret == "" {
				return errors.New("JWT_SECRET_KEY is not set")
			}
			issuer, err := cnwlicense.NewIssuer([]byte(cfg.Signing.Secret))
			if err != nil {
				return err
			}
			claims, err := issuer.Verify(args[0])
			if err != nil {
				return fmt.Errorf("verify credential: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}
