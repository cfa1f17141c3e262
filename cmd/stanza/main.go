package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/stanza/pkg/access"
	"github.com/ormasoftchile/stanza/pkg/data"
	"github.com/ormasoftchile/stanza/pkg/engine"
	"github.com/ormasoftchile/stanza/pkg/schema"
	"github.com/ormasoftchile/stanza/pkg/serve"
	"github.com/ormasoftchile/stanza/pkg/telemetry"
	"github.com/ormasoftchile/stanza/pkg/term"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "stanza",
	Short: "Declarative menu and workflow engine",
	Long:  "stanza — an interpreter for block documents of ordered steps, driving terminal and socket surfaces from one document.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [document.yaml]",
	Short: "Validate a document against the schema and domain rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, errs := schema.ValidateFile(args[0])
	if len(errs) > 0 {
		var errors []*schema.ValidationError
		var warnings []*schema.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
			for i, e := range errors {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errors))
		}
	}
	fmt.Printf("✓ %s is valid (%d blocks)\n", args[0], len(doc.Blocks))
	return nil
}

// --- run ---

var (
	runEntry      string
	runVars       []string
	runAs         string
	runRoles      []string
	runPerms      []string
	runDB         string
	runStatements string
	runTrace      string
)

var runCmd = &cobra.Command{
	Use:   "run [document.yaml]",
	Short: "Run a document interactively in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	log := telemetry.SetupLogger()

	doc, err := loadValidDocument(args[0])
	if err != nil {
		return err
	}

	vars, err := parseVarFlags(runVars)
	if err != nil {
		return err
	}

	auth := access.Guest()
	if runAs != "" {
		auth = access.SignedIn(runAs, runRoles, runPerms)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, runDB, runStatements)
	if err != nil {
		return err
	}
	defer closeStore()

	input, err := term.NewReadLiner()
	if err != nil {
		return err
	}
	defer input.Close()

	cfg := engine.Config{
		Document:     doc,
		Auth:         auth,
		Display:      term.NewRenderer(os.Stdout),
		Input:        input,
		Navigator:    term.NewMenuNavigator(os.Stdout),
		Store:        store,
		Scheduler:    engine.Blocking,
		Transactions: store != nil,
		Vars:         vars,
		Logger:       log,
	}

	if runTrace != "" {
		tw, err := engine.NewTraceWriter(runTrace, "")
		if err != nil {
			return err
		}
		defer tw.Close()
		cfg.Trace = tw
	}

	eng := engine.New(cfg)
	out := eng.Run(ctx, runEntry)
	if out.State == engine.Errored {
		return fmt.Errorf("run %s: %w", out.RunID, out.Err)
	}
	return nil
}

// --- serve ---

var (
	serveAddr       string
	serveEntry      string
	serveDB         string
	serveStatements string
)

var serveCmd = &cobra.Command{
	Use:   "serve [document.yaml]",
	Short: "Serve a document to websocket clients",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := telemetry.SetupLogger()

	doc, err := loadValidDocument(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, serveDB, serveStatements)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := serve.New(serve.Options{
		Addr:     serveAddr,
		Document: doc,
		Entry:    serveEntry,
		Store:    store,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the document JSON schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stanza %s (%s)\n", version, commit)
	},
}

// --- helpers ---

// loadValidDocument validates then returns the document, refusing to
// run anything with structural or domain errors.
func loadValidDocument(path string) (*schema.Document, error) {
	doc, errs := schema.ValidateFile(path)
	var fatal int
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			continue
		}
		fatal++
		fmt.Fprintf(os.Stderr, "  ✗ [%s] %s\n", e.Phase, e.Message)
	}
	if fatal > 0 {
		return nil, fmt.Errorf("document has %d error(s)", fatal)
	}
	return doc, nil
}

func parseVarFlags(flags []string) (map[string]string, error) {
	vars := make(map[string]string, len(flags))
	for _, v := range flags {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		vars[parts[0]] = parts[1]
	}
	return vars, nil
}

// openStore opens the Postgres store when a DSN is configured. No DSN
// and no STANZA_DB_URL means no store, which is fine for documents
// without data directives.
func openStore(ctx context.Context, dsn, stmtsPath string) (data.Store, func(), error) {
	if dsn == "" && os.Getenv("STANZA_DB_URL") == "" {
		return nil, func() {}, nil
	}
	stmts, err := loadStatements(stmtsPath)
	if err != nil {
		return nil, nil, err
	}
	pool, err := data.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return data.NewPGStore(pool, stmts), pool.Close, nil
}

// loadStatements reads the name → SQL statement map.
func loadStatements(path string) (map[string]string, error) {
	if path == "" {
		path = "statements.yaml"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statements: %w", err)
	}
	stmts := map[string]string{}
	if err := yaml.Unmarshal(raw, &stmts); err != nil {
		return nil, fmt.Errorf("parse statements: %w", err)
	}
	return stmts, nil
}

func init() {
	runCmd.Flags().StringVar(&runEntry, "entry", "main", "entry block")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "seed variable (key=value, repeatable)")
	runCmd.Flags().StringVar(&runAs, "as", "", "run signed in as this actor")
	runCmd.Flags().StringSliceVar(&runRoles, "role", nil, "roles for --as")
	runCmd.Flags().StringSliceVar(&runPerms, "perm", nil, "permissions for --as")
	runCmd.Flags().StringVar(&runDB, "db", "", "Postgres DSN (defaults to STANZA_DB_URL)")
	runCmd.Flags().StringVar(&runStatements, "statements", "", "named statement map YAML (default statements.yaml)")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "append step results to this JSONL file")

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7070", "listen address")
	serveCmd.Flags().StringVar(&serveEntry, "entry", "main", "default entry block")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Postgres DSN (defaults to STANZA_DB_URL)")
	serveCmd.Flags().StringVar(&serveStatements, "statements", "", "named statement map YAML (default statements.yaml)")

	rootCmd.AddCommand(validateCmd, runCmd, serveCmd, schemaCmd, versionCmd)
}
