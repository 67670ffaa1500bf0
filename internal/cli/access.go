package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/access"
	"github.com/medledger/medledger/internal/model"
)

// AccessOptions holds flags for the access subcommands.
type AccessOptions struct {
	*RootOptions
	As      string
	Reason  string
	Message string
}

// NewAccessCommand creates the access command with its subcommands.
func NewAccessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "access",
		Short: "Request, resolve and inspect access grants",
	}
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "acting capability: doctor:<id>, patient:<id> or admin (required)")

	request := &cobra.Command{
		Use:           "request <patient-id>",
		Short:         "File an access request for a patient (doctor only)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return requestAccess(opts, args[0], cmd)
		},
	}
	request.Flags().StringVar(&opts.Reason, "reason", "", "reason for the request (required)")
	request.Flags().StringVar(&opts.Message, "message", "", "free-form note to the patient")
	_ = request.MarkFlagRequired("reason")

	resolve := &cobra.Command{
		Use:           "resolve <request-id> <APPROVED|DENIED>",
		Short:         "Approve or deny an access request (patient only)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveAccess(opts, args[0], model.AccessStatus(args[1]), cmd)
		},
	}

	pending := &cobra.Command{
		Use:           "pending",
		Short:         "List requests awaiting your decision (patient only)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPending(opts, cmd)
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List requests you have filed (doctor only)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRequests(opts, cmd)
		},
	}

	patients := &cobra.Command{
		Use:           "patients",
		Short:         "List patients you hold a grant for (doctor only)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPatients(opts, cmd)
		},
	}

	cmd.AddCommand(request, resolve, pending, list, patients)
	return cmd
}

func withGate(opts *AccessOptions, cmd *cobra.Command, fn func(*access.Gate, model.Capability, *OutputFormatter) error) error {
	out := formatter(opts.RootOptions, cmd)
	caller, err := parseCapability(opts.As)
	if err != nil {
		return out.Fail(err)
	}
	s, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(access.NewGate(s), caller, out)
}

func requestAccess(opts *AccessOptions, patientID string, cmd *cobra.Command) error {
	return withGate(opts, cmd, func(gate *access.Gate, caller model.Capability, out *OutputFormatter) error {
		ar, err := gate.RequestAccess(cmd.Context(), caller, patientID, opts.Reason, opts.Message)
		if err != nil {
			return out.Fail(err)
		}
		if opts.Format == "json" {
			return out.SuccessJSON(ar)
		}
		return out.Success(fmt.Sprintf("access request %s filed for patient %s (%s)", ar.ID, ar.PatientID, ar.Status))
	})
}

func resolveAccess(opts *AccessOptions, requestID string, decision model.AccessStatus, cmd *cobra.Command) error {
	return withGate(opts, cmd, func(gate *access.Gate, caller model.Capability, out *OutputFormatter) error {
		ar, err := gate.ResolveAccess(cmd.Context(), caller, requestID, decision)
		if err != nil {
			return out.Fail(err)
		}
		if opts.Format == "json" {
			return out.SuccessJSON(ar)
		}
		return out.Success(fmt.Sprintf("access request %s is now %s", ar.ID, ar.Status))
	})
}

func listPending(opts *AccessOptions, cmd *cobra.Command) error {
	return withGate(opts, cmd, func(gate *access.Gate, caller model.Capability, out *OutputFormatter) error {
		ars, err := gate.PendingForPatient(cmd.Context(), caller)
		if err != nil {
			return out.Fail(err)
		}
		return renderRequests(opts, out, ars, cmd)
	})
}

func listRequests(opts *AccessOptions, cmd *cobra.Command) error {
	return withGate(opts, cmd, func(gate *access.Gate, caller model.Capability, out *OutputFormatter) error {
		ars, err := gate.RequestsForDoctor(cmd.Context(), caller)
		if err != nil {
			return out.Fail(err)
		}
		return renderRequests(opts, out, ars, cmd)
	})
}

func listPatients(opts *AccessOptions, cmd *cobra.Command) error {
	return withGate(opts, cmd, func(gate *access.Gate, caller model.Capability, out *OutputFormatter) error {
		patients, err := gate.ApprovedPatients(cmd.Context(), caller)
		if err != nil {
			return out.Fail(err)
		}
		if opts.Format == "json" {
			return out.SuccessJSON(patients)
		}
		for _, p := range patients {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  ledger=%s\n", p.ID, orDash(p.LedgerAddress))
		}
		return out.Success(fmt.Sprintf("%d patient(s)", len(patients)))
	})
}

func renderRequests(opts *AccessOptions, out *OutputFormatter, ars []model.AccessRequest, cmd *cobra.Command) error {
	if opts.Format == "json" {
		return out.SuccessJSON(ars)
	}
	for _, ar := range ars {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  doctor=%s patient=%s status=%s reason=%q\n",
			ar.ID, ar.DoctorID, ar.PatientID, ar.Status, ar.Reason)
	}
	return out.Success(fmt.Sprintf("%d request(s)", len(ars)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
