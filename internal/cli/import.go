package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/config"
	"github.com/rglservice/mediation-strapi-import-export/internal/importer"
	"github.com/rglservice/mediation-strapi-import-export/internal/media"
	"github.com/rglservice/mediation-strapi-import-export/internal/parsers"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// ImportCommand handles importing content from a local file without
// going through the HTTP server.
type ImportCommand struct {
	FilePath        string
	Model           string
	Format          string
	IdentifierField string
	ImportAsDrafts  bool
	DatabasePath    string
	SchemaPath      string
	Verbose         bool
	DryRun          bool
}

func NewImportCommand() *ImportCommand {
	return &ImportCommand{}
}

func (cmd *ImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)

	fs.StringVar(&cmd.FilePath, "file", "", "Path to the file to import (required)")
	fs.StringVar(&cmd.Model, "model", "", "Model the records belong to, or 'all' for a multi-model payload (required)")
	fs.StringVar(&cmd.Format, "format", "", "Input format: csv, json, object or dbdump (default: inferred from file extension)")
	fs.StringVar(&cmd.IdentifierField, "identifier", "", "Field used to match existing entities (default: the model's configured identifier)")
	fs.BoolVar(&cmd.ImportAsDrafts, "drafts", false, "Import records as drafts instead of published entities")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.StringVar(&cmd.SchemaPath, "schema", config.DefaultSchemaPath, "Path to the model schema file")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Parse the file and report what would be imported without writing anything")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import -file <path> -model <model> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import content from a local file into the entity store.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Import articles from a CSV export:\n")
		fmt.Fprintf(os.Stderr, "  %s import -file articles.csv -model article\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Preview a legacy JSON import without touching the database:\n")
		fmt.Fprintf(os.Stderr, "  %s import -file backup.json -model article -dry-run -verbose\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.FilePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	if cmd.Model == "" {
		return fmt.Errorf("required flag -model not provided")
	}

	if cmd.Format == "" {
		if strings.EqualFold(filepath.Ext(cmd.FilePath), ".csv") {
			cmd.Format = parsers.FormatCSV
		} else {
			cmd.Format = parsers.FormatJSON
		}
	}

	return nil
}

func (cmd *ImportCommand) Run() error {
	fmt.Println("Content Import")
	fmt.Println("==============")

	if cmd.DryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
		fmt.Println()
	}

	raw, err := os.ReadFile(cmd.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	fmt.Printf("File: %s (%s, model %q)\n", cmd.FilePath, cmd.Format, cmd.Model)

	registry, err := schema.LoadFile(cmd.SchemaPath)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	logger := zap.NewNop()
	if cmd.Verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	opts := importer.Options{
		Model:           cmd.Model,
		Format:          cmd.Format,
		IdentifierField: cmd.IdentifierField,
		ImportAsDrafts:  cmd.ImportAsDrafts,
	}

	if cmd.DryRun {
		imp := importer.New(registry, nil, nil, logger)
		parsed, rowErrors, err := imp.ParseInputData(cmd.Format, raw, opts)
		if err != nil {
			return fmt.Errorf("failed to parse input: %w", err)
		}

		count := 1
		if records, ok := parsed.([]parsers.Record); ok {
			count = len(records)
		}
		fmt.Printf("Parsed %d records, %d rows rejected\n", count, len(rowErrors))
		for _, rowErr := range rowErrors {
			fmt.Printf("  ! %s\n", rowErr)
		}
		fmt.Println("\nDry run complete. Use without -dry-run to import.")
		return nil
	}

	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	fmt.Printf("Database: %s\n", absDBPath)

	entityStore, err := store.NewStore(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer entityStore.Close()

	imp := importer.New(registry, entityStore, media.NewLibrary(entityStore), logger)

	result, err := imp.ImportData(raw, opts)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if len(result.Failures) == 0 {
		fmt.Println("\nImport complete, no failures")
		return nil
	}

	fmt.Printf("\nImport complete with %d failed records:\n", len(result.Failures))
	for _, failure := range result.Failures {
		fmt.Printf("  ! %s\n", failure.Error)
	}
	return nil
}
