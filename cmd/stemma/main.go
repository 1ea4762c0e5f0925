// Command stemma collates manuscript transcriptions and builds stemmata
// from their textual distances.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

const version = "0.1.0"

// CLI defines the command-line interface for stemma.
type CLI struct {
	Globals

	Import  ImportCmd  `cmd:"" help:"Import TEI or JSON transcriptions"`
	List    ListCmd    `cmd:"" help:"List stored manuscripts"`
	Show    ShowCmd    `cmd:"" help:"Show a manuscript"`
	Delete  DeleteCmd  `cmd:"" help:"Delete a manuscript"`
	Collate CollateCmd `cmd:"" help:"Align the shared verses of manuscripts"`
	Diff    DiffCmd    `cmd:"" help:"List variant readings between manuscripts"`
	Matrix  MatrixCmd  `cmd:"" help:"Print the pairwise distance matrix"`
	Tree    TreeCmd    `cmd:"" help:"Build a stemma"`
	Export  ExportCmd  `cmd:"" help:"Write a report bundle"`
	Report  ReportCmd  `cmd:"" help:"Verify and summarize a report bundle"`
	Newick  NewickCmd  `cmd:"" help:"Newick tree utilities"`
	Serve   ServeCmd   `cmd:"" help:"Start the REST API server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// Globals are flags shared by every command. Set flags override the
// configuration file and STEMMA_* variables.
type Globals struct {
	Config      string `help:"YAML configuration file" type:"path" short:"c"`
	DB          string `name:"db" help:"SQLite database path (use :memory: for a throwaway store)"`
	LogLevel    string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat   string `name:"log-format" help:"Log format (json, text)"`
	Aligner     string `help:"Alignment oracle (builtin, collatex)"`
	CollateXURL string `name:"collatex-url" help:"CollateX server base URL"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("stemma"),
		kong.Description("Juniper Stemma - manuscript collation and stemmatics"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	app, err := newApp(cli.Globals, stdout)
	if err != nil {
		return err
	}
	defer app.Close()
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(app)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		kong.Must(&CLI{}).FatalIfErrorf(err)
	}
}
