package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/importer"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/normalize"
)

func newResolveCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Resolve a referral code to a sales person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := env.printer(cmd)
			if err != nil {
				return err
			}
			services, release, err := env.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			res, err := services.References.Resolve(cmd.Context(), args[0])
			if err != nil {
				var nf *domain.NotFoundError
				if errors.As(err, &nf) {
					return fmt.Errorf("%s %q not found (tried %s)", nf.Subject, nf.Query, strings.Join(nf.Tried, ", "))
				}
				return err
			}
			return p.print(res.Record, []string{"Name", "Sales Person", "Strategy"}, [][]string{{
				normalize.String(res.Record, "name"),
				normalize.String(res.Record, "sales_person_name", "name"),
				res.Strategy,
			}})
		},
	}
}

func newServicesCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the active services of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := env.printer(cmd)
			if err != nil {
				return err
			}
			services, release, err := env.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			list, err := services.Catalog.ListServices(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{s.ID, s.Name, s.Description})
			}
			return p.print(list, []string{"ID", "Name", "Description"}, rows)
		},
	}
}

func newCompanyTypesCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "company-types",
		Short: "List the active company types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := env.printer(cmd)
			if err != nil {
				return err
			}
			services, release, err := env.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			list, err := services.Catalog.ListCompanyTypes(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, ct := range list {
				rows = append(rows, []string{ct.ID, ct.Name})
			}
			return p.print(list, []string{"ID", "Name"}, rows)
		},
	}
}

func newLeadCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "lead <email>",
		Short: "Show the wizard state stored for an applicant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := env.printer(cmd)
			if err != nil {
				return err
			}
			services, release, err := env.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			st, err := services.Wizard.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.print(st, []string{"Lead", "Email", "Company", "Status", "Businesses", "Services"}, [][]string{{
				st.Name,
				st.Email,
				st.CompanyInfo.CompanyName,
				st.RegistrationStatus,
				strconv.Itoa(len(st.Businesses)),
				strings.Join(st.Services, ", "),
			}})
		},
	}
}

func newJournalCommand(env *commandEnv) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal <email>",
		Short: "List recorded submissions for an applicant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := env.printer(cmd)
			if err != nil {
				return err
			}
			services, release, err := env.services(cmd, true)
			if err != nil {
				return err
			}
			defer release()
			if _, ok := services.Journal.(journal.Noop); ok {
				return errors.New("submission journal is disabled, set DB_DSN")
			}

			entries, err := services.Journal.ListByEmail(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				outcome := "updated"
				switch {
				case e.Error != "":
					outcome = "failed: " + e.Error
				case e.Created:
					outcome = "created"
				}
				rows = append(rows, []string{
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.LeadName,
					outcome,
					strconv.Itoa(e.Report.FailedCount()),
					strings.Join(e.Degraded, ", "),
				})
			}
			return p.print(entries, []string{"Submitted", "Lead", "Outcome", "Failed Entries", "Degraded"}, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", journal.DefaultListLimit, "Maximum number of entries")
	return cmd
}

func newImportCommand(env *commandEnv) *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replay onboarding submissions from a CSV export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()

			services, release, err := env.services(cmd, true)
			if err != nil {
				return err
			}
			defer release()

			start := time.Now()
			sum, err := importer.NewCSVImporter(f, services.Wizard, env.logger(cmd)).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("import stopped after %d submissions: %w", sum.Imported, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d submissions (%d new leads, %d failed address/contact entries) in %s\n",
				sum.Imported, sum.Created, sum.FailedEntries, time.Since(start).Truncate(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "Path to onboarding CSV export")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
