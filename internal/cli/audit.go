package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/config"
	"github.com/medledger/medledger/internal/ledger"
)

// NewAuditCommand creates the audit command reading the on-chain log.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the on-chain audit log",
	}

	count := &cobra.Command{
		Use:           "count",
		Short:         "Print the number of anchored entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnchor(rootOpts, cmd, func(anchor ledger.Anchor, out *OutputFormatter) error {
				n, err := anchor.Count(cmd.Context())
				if err != nil {
					return out.Fail(err)
				}
				if rootOpts.Format == "json" {
					return out.SuccessJSON(map[string]int64{"count": n})
				}
				return out.Success(n)
			})
		},
	}

	show := &cobra.Command{
		Use:           "log <id>",
		Short:         "Print one audit entry by index",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid log id %q", args[0]), Err: err}
			}
			return withAnchor(rootOpts, cmd, func(anchor ledger.Anchor, out *OutputFormatter) error {
				entry, err := anchor.GetLog(cmd.Context(), id)
				if err != nil {
					return out.Fail(err)
				}
				if rootOpts.Format == "json" {
					return out.SuccessJSON(entry)
				}
				return out.Success(fmt.Sprintf("patient=%s cid=%s at=%s",
					entry.Patient, entry.CID, time.Unix(entry.Timestamp, 0).UTC().Format(time.RFC3339)))
			})
		},
	}

	cmd.AddCommand(count, show)
	return cmd
}

func withAnchor(rootOpts *RootOptions, cmd *cobra.Command, fn func(ledger.Anchor, *OutputFormatter) error) error {
	out := formatter(rootOpts, cmd)

	cfg, err := config.Load()
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "load configuration", Err: err}
	}
	if err := cfg.ValidateLedger(); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "ledger configuration", Err: err}
	}

	anchor, err := ledger.NewEthereum(cmd.Context(), cfg.Ledger)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "ledger client", Err: err}
	}
	defer anchor.Close()

	return fn(anchor, out)
}
