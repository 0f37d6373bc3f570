package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ptcgai/referee-server-go/internal/catalog"
)

func newCatalogCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build and inspect card catalogs",
	}
	cmd.AddCommand(newCatalogImportCommand(g))
	return cmd
}

func newCatalogImportCommand(g *globals) *cobra.Command {
	var (
		csvPath string
		dsn     string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Convert a card dump into a catalog file",
		Long: `Read card rows from a CSV export or from the ptcg_cards table of a
PostgreSQL card database and write them as a catalog YAML document.`,
		Example: `  ptcgctl catalog import --csv cards.csv -o data/cards.yaml
  ptcgctl catalog import --postgres "$DATABASE_URL" -o data/cards.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (csvPath == "") == (dsn == "") {
				return fmt.Errorf("pass exactly one of --csv and --postgres")
			}
			var (
				records []catalog.Record
				err     error
			)
			if csvPath != "" {
				f, openErr := os.Open(csvPath)
				if openErr != nil {
					return fmt.Errorf("failed to open %s: %w", csvPath, openErr)
				}
				defer f.Close()
				records, err = catalog.ReadCSV(f)
			} else {
				pool, poolErr := pgxpool.New(cmd.Context(), dsn)
				if poolErr != nil {
					return fmt.Errorf("failed to connect to database: %w", poolErr)
				}
				defer pool.Close()
				records, err = catalog.QueryPostgres(cmd.Context(), pool)
			}
			if err != nil {
				return err
			}

			c, err := catalog.Import(records, g.logger())
			if err != nil {
				return err
			}
			toFile := output != "" && output != "-"
			var w io.Writer = cmd.OutOrStdout()
			if toFile {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := c.Write(w); err != nil {
				return err
			}
			if toFile {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d cards to %s\n", c.Len(), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV export to read")
	cmd.Flags().StringVar(&dsn, "postgres", "", "PostgreSQL URL of a card database")
	cmd.Flags().StringVarP(&output, "output", "o", "", "catalog file to write (stdout when empty)")
	return cmd
}
