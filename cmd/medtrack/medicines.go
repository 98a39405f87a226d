package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/franckalain/medtrack/internal/config"
	"github.com/franckalain/medtrack/internal/database"
	"github.com/franckalain/medtrack/internal/inventory"
	"github.com/franckalain/medtrack/internal/logger"
	"github.com/spf13/cobra"
)

// MedicineFlags holds the fields of add and update
type MedicineFlags struct {
	ID       string
	Name     string
	Expiry   string
	Dosage   string
	Quantity string
}

func (f *MedicineFlags) input() inventory.MedicineInput {
	return inventory.MedicineInput{
		Name:       f.Name,
		ExpiryDate: f.Expiry,
		Dosage:     f.Dosage,
		Quantity:   f.Quantity,
	}
}

// openDB opens the database named by --db, or by the config file otherwise.
// Command output goes to stdout, so logs are kept to warnings on stderr.
func openDB(flags *GlobalFlags) (*database.SQLiteDB, error) {
	if err := logger.Init(logger.Config{Level: "warn", Output: "stderr"}); err != nil {
		return nil, err
	}
	path := flags.DBPath
	if path == "" {
		cfg, err := config.LoadConfig(configPath(flags))
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		path = cfg.Database.Path
	}
	db, err := database.NewSQLiteDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func createListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List medicines, most urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(flags)
			if err != nil {
				return err
			}
			defer db.Close()

			d, err := inventory.New(db, nil).Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return printDashboard(cmd.OutOrStdout(), d)
		},
	}
}

func printDashboard(out io.Writer, d *inventory.Dashboard) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tLEFT\tEXPIRY\tNAME\tDOSAGE\tQUANTITY\tID")
	for _, e := range d.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Status, e.Label, e.ExpiryDate, e.Name, e.Dosage, e.Quantity, e.ID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	s := d.Summary
	_, err := fmt.Fprintf(out, "\n%d medicines on %s: %d expired, %d critical, %d warning, %d safe\n",
		s.Total(), d.Today, s.Expired, s.Critical, s.Warning, s.Safe)
	return err
}

func addMedicineFlags(cmd *cobra.Command, f *MedicineFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "medicine name (required)")
	cmd.Flags().StringVar(&f.Expiry, "expiry", "", "expiry date as YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&f.Dosage, "dosage", "", "dosage, e.g. \"1 tablet twice a day\"")
	cmd.Flags().StringVar(&f.Quantity, "quantity", "", "quantity left, e.g. \"20 tablets\"")
}

func createAddCommand(flags *GlobalFlags) *cobra.Command {
	medFlags := &MedicineFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a medicine",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(flags)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := inventory.New(db, nil).Add(cmd.Context(), medFlags.input())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", m.Name, m.ID)
			return err
		},
	}
	addMedicineFlags(cmd, medFlags)
	return cmd
}

func createUpdateCommand(flags *GlobalFlags) *cobra.Command {
	medFlags := &MedicineFlags{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a medicine's name, expiry date, dosage and quantity",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(flags)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := inventory.New(db, nil).Update(cmd.Context(), medFlags.ID, medFlags.input())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%s)\n", m.Name, m.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&medFlags.ID, "id", "", "medicine id (required)")
	addMedicineFlags(cmd, medFlags)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createDeleteCommand(flags *GlobalFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a medicine",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(flags)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := inventory.New(db, nil).Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "medicine id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createScansCommand(flags *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "Show recent photo capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(flags)
			if err != nil {
				return err
			}
			defer db.Close()

			scans, err := db.ListCaptureScans(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tTARGET\tSTATE\tTEXT\tERROR")
			for _, s := range scans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.FinishedAt.Local().Format("2006-01-02 15:04"), s.Target, s.State, s.Text, s.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to show")
	return cmd
}
