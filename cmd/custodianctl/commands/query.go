package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"custodian/internal/ledger/history"
	"custodian/pkg/domain"
)

// operator reads with audit visibility so the full timeline is shown.
func operator(id string) (domain.Principal, error) {
	pid, err := domain.ParsePrincipalID(id)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{ID: pid, Capabilities: domain.CapabilitySet{domain.CapabilityAudit}}, nil
}

func newVersionCmd(a *app) *cobra.Command {
	var asOf, principal string
	cmd := &cobra.Command{
		Use:   "version <asset-id>",
		Short: "Print the derived version of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseAssetID(args[0])
			if err != nil {
				return err
			}
			at := time.Now().UTC()
			if asOf != "" {
				if at, err = time.Parse(time.RFC3339, asOf); err != nil {
					return fmt.Errorf("--as-of must be RFC 3339: %w", err)
				}
			}
			p, err := operator(principal)
			if err != nil {
				return err
			}

			svc, closeFn, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := svc.VersionAsOf(cmd.Context(), p, id, at)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC 3339 instant (default now)")
	cmd.Flags().StringVar(&principal, "principal", uuid.NewString(), "operator principal id recorded in audit events")
	return cmd
}

type historyLine struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Created string `json:"created_at"`
	Version string `json:"version,omitempty"`
	Diffs   int    `json:"diffs"`
	Notes   int    `json:"audit_notes"`
}

func toHistoryLines(entries []history.Entry) []historyLine {
	out := make([]historyLine, len(entries))
	for i, e := range entries {
		out[i] = historyLine{
			Code:    e.Code,
			Kind:    string(e.Kind),
			State:   string(e.State),
			Created: e.CreatedAt.UTC().Format(time.RFC3339),
			Diffs:   len(e.Diffs),
			Notes:   len(e.AuditNotes),
		}
		if e.Version != nil {
			out[i].Version = e.Version.String()
		}
	}
	return out
}

func newHistoryCmd(a *app) *cobra.Command {
	var principal string
	cmd := &cobra.Command{
		Use:   "history <asset-id>",
		Short: "Print the full change-request timeline of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseAssetID(args[0])
			if err != nil {
				return err
			}
			p, err := operator(principal)
			if err != nil {
				return err
			}

			svc, closeFn, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := svc.History(cmd.Context(), p, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), toHistoryLines(entries))
		},
	}
	cmd.Flags().StringVar(&principal, "principal", uuid.NewString(), "operator principal id recorded in audit events")
	return cmd
}
