package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/access"
	"github.com/medledger/medledger/internal/commit"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/pin"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	As          string
	Title       string
	Diagnosis   string
	Treatment   string
	Medications string
	Notes       string
}

// NewCommitCommand creates the commit command. It talks to all three
// backends, so it needs the Pinata and ledger configuration present.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "commit <patient-id>",
		Short:         "Commit a clinical record for a patient (doctor only)",
		Long: `Commit a clinical record for a patient.

The record content is pinned to IPFS through Pinata, stored locally and
anchored on the ledger. The command blocks until the ledger transaction
is confirmed. Requires an APPROVED access request for the patient.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commitRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "acting capability, must be doctor:<id> (required)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "record title (required)")
	cmd.Flags().StringVar(&opts.Diagnosis, "diagnosis", "", "diagnosis")
	cmd.Flags().StringVar(&opts.Treatment, "treatment", "", "treatment")
	cmd.Flags().StringVar(&opts.Medications, "medications", "", "medications")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func commitRecord(opts *CommitOptions, patientID string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	caller, err := parseCapability(opts.As)
	if err != nil {
		return out.Fail(err)
	}

	s, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := cfg.ValidatePinning(); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "pinning configuration", Err: err}
	}
	if err := cfg.ValidateLedger(); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "ledger configuration", Err: err}
	}

	pinner, err := pin.NewPinata(cfg.Pinata)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "pinning client", Err: err}
	}

	anchor, err := ledger.NewEthereum(cmd.Context(), cfg.Ledger)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "ledger client", Err: err}
	}
	defer anchor.Close()

	orch := commit.New(access.NewGate(s), s, pinner, anchor)
	out.VerboseLog("committing record for patient %s", patientID)

	rec, err := orch.CommitRecord(cmd.Context(), caller, commit.Input{
		PatientID:   patientID,
		Title:       opts.Title,
		Diagnosis:   opts.Diagnosis,
		Treatment:   opts.Treatment,
		Medications: opts.Medications,
		Notes:       opts.Notes,
	})
	if err != nil {
		return out.Fail(err)
	}

	if opts.Format == "json" {
		return out.SuccessJSON(rec)
	}
	return out.Success(fmt.Sprintf("record %s committed (%s)\n  cid: %s\n  tx:  %s",
		rec.ID, rec.SyncStatus, rec.CID, rec.BlockchainTx))
}

// NewRecordsCommand creates the records listing command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:           "records <patient-id>",
		Short:         "List a patient's records",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(rootOpts, cmd)
			caller, err := parseCapability(as)
			if err != nil {
				return out.Fail(err)
			}
			s, _, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			// Listing needs no external backends, so the orchestrator
			// runs without pinning or ledger clients here.
			orch := commit.New(access.NewGate(s), s, nil, nil)
			recs, err := orch.RecordsForPatient(cmd.Context(), caller, args[0])
			if err != nil {
				return out.Fail(err)
			}

			if rootOpts.Format == "json" {
				return out.SuccessJSON(recs)
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  status=%s cid=%s tx=%s\n",
					r.ID, r.Title, r.SyncStatus, r.CID, orDash(r.BlockchainTx))
			}
			return out.Success(fmt.Sprintf("%d record(s)", len(recs)))
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "acting capability: doctor:<id>, patient:<id> or admin (required)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
