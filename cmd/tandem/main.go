package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/autodesk-tandem/tandem-sample-rest/internal"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/attrschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/dtschema"
	"github.com/autodesk-tandem/tandem-sample-rest/internal/rows"
	pkgconfig "github.com/autodesk-tandem/tandem-sample-rest/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogger(logger)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func qualifyKeys(_ context.Context, cmd *cli.Command) error {
	out, err := catalogservice.QualifyKeys(cmd.Args().Slice(), cmd.Bool("logical"))
	if err != nil {
		return err
	}
	for _, k := range out {
		fmt.Fprintln(cmd.Root().Writer, k)
	}
	return nil
}

func decodeKeys(_ context.Context, cmd *cli.Command) error {
	out, err := catalogservice.DecodeKeys(cmd.Args().Slice())
	if err != nil {
		return err
	}
	return printJSON(cmd.Root().Writer, out)
}

// readSchema resolves a catalog file offline. The model id defaults to the
// file name without its extension.
func readSchema(cmd *cli.Command, path string) (*attrschema.Schema, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	modelID := cmd.String("model")
	if modelID == "" {
		modelID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	return attrschema.New(modelID, data,
		attrschema.WithLogger(logger),
		attrschema.WithStrict(cfg.Schema.Strict || cmd.Bool("strict")),
		attrschema.WithFormatOverrides(cfg.Formatting.Overrides()),
	)
}

func listAttrs(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: attrs <catalog.json>")
	}
	schema, err := readSchema(cmd, cmd.Args().First())
	if err != nil {
		return err
	}

	defs := schema.Attributes()
	if h := cmd.String("hash"); h != "" {
		d, ok := schema.FindAttributeByHash(h)
		if !ok {
			return fmt.Errorf("no attribute with hash %s", h)
		}
		return printJSON(cmd.Root().Writer, d.Info())
	}
	if c := cmd.String("classification"); c != "" {
		defs = schema.ApplicableAttributes(c)
	}

	w := cmd.Root().Writer
	for _, d := range defs {
		if d.Hidden() && !cmd.Bool("hidden") {
			continue
		}
		fmt.Fprintf(w, "%-10s %-20s %-30s %-12s %s\n",
			d.QualifiedColumn(), d.Category(), d.Name(), d.DataType(), d.Hash())
	}
	return nil
}

func formatRows(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: format-rows <catalog.json> <scan.json>")
	}
	schema, err := readSchema(cmd, cmd.Args().Get(0))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.Args().Get(1))
	if err != nil {
		return err
	}
	res, err := rows.Parse(data)
	if err != nil {
		return err
	}

	var exclude []dtschema.ColumnFamily
	for _, f := range cmd.StringSlice("exclude") {
		exclude = append(exclude, dtschema.ColumnFamily(f))
	}
	return printJSON(cmd.Root().Writer, rows.FormatAll(schema, res, rows.Options{
		ExcludeFamilies: exclude,
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}))
}

func schemaFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model URN (default: file name)"},
		&cli.BoolFlag{Name: "strict", Usage: "Fail on malformed tuples and duplicate names"},
	)
}

func main() {

	cmd := &cli.Command{
		Name:   "tandem",
		Usage:  "Resolve, index and serve Tandem attribute schemas",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API and catalog watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the catalog tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "qualify-key",
				Usage:     "Convert short element keys to qualified keys",
				ArgsUsage: "<shortKey>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "logical", Aliases: []string{"l"}, Usage: "Use the logical element flag"},
				},
				Action: qualifyKeys,
			},
			{
				Name:      "decode-key",
				Usage:     "Split qualified keys into element flags and short keys",
				ArgsUsage: "<qualifiedKey>...",
				Action:    decodeKeys,
			},
			{
				Name:      "attrs",
				Usage:     "List the attributes of a catalog file",
				ArgsUsage: "<catalog.json>",
				Flags: schemaFlags(
					&cli.StringFlag{Name: "hash", Usage: "Show the attribute with this identity hash"},
					&cli.StringFlag{Name: "classification", Usage: "Only native parameters applying to this classification"},
					&cli.BoolFlag{Name: "hidden", Usage: "Include hidden attributes"},
				),
				Action: listAttrs,
			},
			{
				Name:      "format-rows",
				Usage:     "Resolve a scan result against a catalog file",
				ArgsUsage: "<catalog.json> <scan.json>",
				Flags: schemaFlags(
					&cli.StringSliceFlag{Name: "exclude", Usage: "Column families to drop, e.g. r"},
				),
				Action: formatRows,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
