// Command criteria compiles criteria documents to SQL, runs them against a
// configured database and matches them against documents in memory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/asaidimu/go-criteria/celfilter"
	"github.com/asaidimu/go-criteria/core/criteria"
	"github.com/asaidimu/go-criteria/core/expr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	logLevel string
	filter   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "criteria",
		Short:         "Compile and run criteria filter documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.config, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides the config")
	rootCmd.PersistentFlags().StringVar(&flags.filter, "filter", "", "criteria document, JSON or YAML by extension, - for stdin")

	rootCmd.AddCommand(
		newCompileCmd(flags),
		newQueryCmd(flags),
		newCountCmd(flags),
		newMatchCmd(flags),
	)
	return rootCmd
}

// setup loads the config and builds the logger.
func (f *rootFlags) setup() (*Config, *zap.Logger, error) {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return nil, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newCompileCmd(flags *rootFlags) *cobra.Command {
	var dialect, alias string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a criteria document and print the SQL predicate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if alias == "" {
				alias = cfg.RootAlias
			}
			d, err := dialectFor(dialect)
			if err != nil {
				return err
			}
			filter, err := readFilter(flags.filter)
			if err != nil {
				return err
			}
			composite, err := criteria.NewCompiler(logger).Compile(filter, d.NewBuilder(alias))
			if err != nil {
				return err
			}
			stmt, err := expr.Render(composite, d)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"expression": composite.String(),
				"sql":        stmt.SQL,
				"args":       stmt.Args,
			})
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "sqlite", "SQL dialect: sqlite or postgres")
	cmd.Flags().StringVar(&alias, "alias", "", "root alias, defaults to the config's root_alias")
	return cmd
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var order string
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a criteria document and print the paginated result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			filter, err := readFilter(flags.filter)
			if err != nil {
				return err
			}
			orderBy, err := readOrder(order)
			if err != nil {
				return err
			}
			repo, db, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := repo.FindByCriteria(cmd.Context(), filter, orderBy, skip, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "order document of field to asc or desc")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of matching rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size, the config's default_limit when 0")
	return cmd
}

func newCountCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count the rows matching a criteria document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			filter, err := readFilter(flags.filter)
			if err != nil {
				return err
			}
			repo, db, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := repo.CountByCriteria(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func newMatchCmd(flags *rootFlags) *cobra.Command {
	var documents, alias string
	var foldLikeCase bool
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Print the documents of a file that match a criteria document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if alias == "" {
				alias = cfg.RootAlias
			}
			filter, err := readFilter(flags.filter)
			if err != nil {
				return err
			}
			docs, err := readDocuments(documents)
			if err != nil {
				return err
			}
			var opts []celfilter.Option
			if foldLikeCase {
				opts = append(opts, celfilter.FoldLikeCase())
			}
			matcher, err := celfilter.CompileFilter(filter, alias, opts...)
			if err != nil {
				return err
			}
			logger.Debug("Compiled in-memory filter", zap.String("source", matcher.Source()))

			matched, err := matcher.Filter(docs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), matched)
		},
	}
	cmd.Flags().StringVar(&documents, "documents", "", "JSON or YAML list of documents")
	cmd.Flags().StringVar(&alias, "alias", "", "root alias, defaults to the config's root_alias")
	cmd.Flags().BoolVar(&foldLikeCase, "fold-like-case", false, "make like ignore case, as SQLite does")
	_ = cmd.MarkFlagRequired("documents")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
