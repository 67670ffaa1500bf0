package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/model"
)

// RegisterOptions holds flags for the register subcommands.
type RegisterOptions struct {
	*RootOptions
	Email         string
	Name          string
	LedgerAddress string
}

// NewRegisterCommand creates the register command with its doctor and
// patient subcommands.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a doctor or patient",
	}

	doctor := &cobra.Command{
		Use:           "doctor",
		Short:         "Register a doctor",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return registerDoctor(opts, cmd)
		},
	}

	patient := &cobra.Command{
		Use:           "patient",
		Short:         "Register a patient",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return registerPatient(opts, cmd)
		},
	}
	patient.Flags().StringVar(&opts.LedgerAddress, "ledger-address", "", "patient's ledger account address (optional, settable later)")

	for _, sub := range []*cobra.Command{doctor, patient} {
		sub.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
		sub.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
		_ = sub.MarkFlagRequired("email")
		_ = sub.MarkFlagRequired("name")
		cmd.AddCommand(sub)
	}

	return cmd
}

func registerDoctor(opts *RegisterOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	s, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := model.UUIDv7Generator{}
	now := time.Now().UTC()
	user := model.User{
		ID: ids.NewID(), Email: opts.Email, Name: opts.Name,
		Role: model.RoleDoctor, CreatedAt: now, UpdatedAt: now,
	}
	doctor := model.Doctor{ID: ids.NewID(), UserID: user.ID, CreatedAt: now, UpdatedAt: now}

	if err := s.RegisterDoctor(cmd.Context(), user, doctor); err != nil {
		return out.Fail(err)
	}

	if opts.Format == "json" {
		return out.SuccessJSON(doctor)
	}
	return out.Success(fmt.Sprintf("registered doctor %s (user %s)", doctor.ID, user.ID))
}

func registerPatient(opts *RegisterOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	s, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := model.UUIDv7Generator{}
	now := time.Now().UTC()
	user := model.User{
		ID: ids.NewID(), Email: opts.Email, Name: opts.Name,
		Role: model.RolePatient, CreatedAt: now, UpdatedAt: now,
	}
	patient := model.Patient{
		ID: ids.NewID(), UserID: user.ID,
		LedgerAddress: opts.LedgerAddress,
		CreatedAt:     now, UpdatedAt: now,
	}

	if err := s.RegisterPatient(cmd.Context(), user, patient); err != nil {
		return out.Fail(err)
	}

	if opts.Format == "json" {
		return out.SuccessJSON(patient)
	}
	return out.Success(fmt.Sprintf("registered patient %s (user %s)", patient.ID, user.ID))
}

// NewSetAddressCommand creates the set-address command.
func NewSetAddressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "set-address <patient-id> <ledger-address>",
		Short:         "Set a patient's ledger account address",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(rootOpts, cmd)
			s, _, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SetPatientLedgerAddress(cmd.Context(), args[0], args[1], time.Now().UTC()); err != nil {
				return out.Fail(err)
			}
			return out.Success(fmt.Sprintf("patient %s ledger address set to %s", args[0], args[1]))
		},
	}
	return cmd
}
