package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwttoken "custodian/internal/jwt_token"
	"custodian/internal/platform/config"
	"custodian/pkg/domain"
	strutil "custodian/pkg/platform/strings"
)

func newTokenCmd(a *app) *cobra.Command {
	var subject, caps string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an identity token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Server.RegulatedMode {
				return errors.New("token minting is disabled in regulated mode")
			}
			id, err := domain.ParsePrincipalID(subject)
			if err != nil {
				return err
			}
			set, err := domain.ParseCapabilitySet(strutil.DedupeAndTrimLower(strings.Split(caps, ",")))
			if err != nil {
				return err
			}
			if a.cfg.Auth.SigningKey == config.DevSigningKey {
				a.log.Warn("signing with the development key")
			}

			svc := jwttoken.NewJWTService(a.cfg.Auth.SigningKey, a.cfg.Auth.Issuer)
			token, err := svc.GenerateToken(domain.Principal{ID: id, Capabilities: set}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "principal id (UUID)")
	cmd.Flags().StringVar(&caps, "caps", string(domain.CapabilityStandard), "comma-separated capabilities")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
