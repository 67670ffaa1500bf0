// Package cli wires the medledger commands: registration, access
// requests, record commits and ledger audit reads.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/config"
	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/model"
	"github.com/medledger/medledger/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	DBPath  string
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the medledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "medledger",
		Short: "medledger - clinical records with pinned content and a ledger audit trail",
		Long: `medledger commits clinical records through a three-backend pipeline:
content is pinned to IPFS, the record is stored locally, and a reference
is anchored on an EVM ledger. Writes are gated by patient-approved
access requests.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the record database (default from MEDLEDGER_DB_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewSetAddressCommand(opts))
	cmd.AddCommand(NewAccessCommand(opts))
	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStore resolves the database path from the --db flag or the
// environment and opens it.
func openStore(opts *RootOptions) (*store.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, &ExitError{Code: ExitCommandError, Message: "load configuration", Err: err}
	}
	path := opts.DBPath
	if path == "" {
		path = cfg.DBPath
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, config.Config{}, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("open database %s", path), Err: err}
	}
	return s, cfg, nil
}

// parseCapability parses the --as flag: "doctor:<id>", "patient:<id>" or
// "admin".
func parseCapability(s string) (model.Capability, error) {
	if s == "admin" {
		return model.AdminCapability{}, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return nil, fault.Validation("capability must be doctor:<id>, patient:<id> or admin, got %q", s)
	}
	switch kind {
	case "doctor":
		return model.DoctorCapability{DoctorID: id}, nil
	case "patient":
		return model.PatientCapability{PatientID: id}, nil
	default:
		return nil, fault.Validation("unknown capability kind %q", kind)
	}
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}
