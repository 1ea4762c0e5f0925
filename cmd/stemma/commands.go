package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/cas"
	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/newick"
	"github.com/FocuswithJustin/JuniperStemma/core/sqlite"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/internal/api"
	"github.com/FocuswithJustin/JuniperStemma/internal/archive"
	"github.com/FocuswithJustin/JuniperStemma/internal/ingest"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ImportCmd loads transcription files into the store.
type ImportCmd struct {
	Files []string `arg:"" help:"TEI (.xml, .tei) or JSON (.json) files" type:"existingfile"`
}

func (c *ImportCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	for _, path := range c.Files {
		m, err := ingest.LoadFile(path)
		if err != nil {
			return errors.Wrapf(err, "import %s", path)
		}
		id, err := svc.Store.Put(ctx, m)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "%s\t%s\t%d verses\n", id, m.Sigla(), len(m.Verses))
	}
	return nil
}

// ListCmd prints every stored manuscript.
type ListCmd struct {
	JSON bool `help:"Print JSON"`
}

func (c *ListCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	list, err := svc.Store.List(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(app.Out, list)
	}
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIGLA\tVERSES\tFILENAME")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Sigla, s.VerseCount, s.Filename)
	}
	return tw.Flush()
}

// ShowCmd prints a manuscript, or one of its verses.
type ShowCmd struct {
	ID    string `arg:"" help:"Manuscript ID"`
	Verse string `help:"Print only this verse"`
}

func (c *ShowCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	m, err := svc.Store.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	if c.Verse != "" {
		v, ok := m.Verse(c.Verse)
		if !ok {
			return errors.NewNotFound("verse", c.Verse)
		}
		fmt.Fprintln(app.Out, v.Text)
		return nil
	}
	return printJSON(app.Out, m)
}

// DeleteCmd removes a manuscript.
type DeleteCmd struct {
	ID string `arg:"" help:"Manuscript ID"`
}

func (c *DeleteCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	return svc.Store.Delete(ctx, c.ID)
}

// CollateCmd prints the alignment table of every shared verse.
type CollateCmd struct {
	IDs []string `arg:"" name:"ids" help:"Manuscript IDs"`
}

func (c *CollateCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	comparison, err := svc.Collate(ctx, c.IDs)
	if err != nil {
		return err
	}
	return printJSON(app.Out, map[string]any{
		"manuscripts": comparison.Manuscripts,
		"alignments":  comparison.Alignments(),
	})
}

// DiffCmd prints the variant readings.
type DiffCmd struct {
	IDs []string `arg:"" name:"ids" help:"Manuscript IDs"`
}

func (c *DiffCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	rep, err := svc.Differences(ctx, c.IDs)
	if err != nil {
		return err
	}
	return printJSON(app.Out, rep)
}

// MatrixCmd prints the distance matrix.
type MatrixCmd struct {
	IDs      []string `arg:"" name:"ids" help:"Manuscript IDs"`
	Strategy string   `help:"alignment (token disagreement) or text (edit distance)"`
	JSON     bool     `help:"Print JSON"`
}

func (c *MatrixCmd) Run(app *App, ctx context.Context) error {
	var strategy distance.Strategy
	if c.Strategy != "" {
		s, err := distance.ParseStrategy(c.Strategy)
		if err != nil {
			return err
		}
		strategy = s
	}
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	rep, err := svc.Distance(ctx, c.IDs, strategy)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(app.Out, rep)
	}

	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\t%s\t\n", strings.Join(rep.Labels, "\t"))
	for i, row := range rep.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%.4f", v)
			if rep.Imputed[i][j] {
				cells[j] += "*"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", rep.Labels[i], strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rep.Omitted) > 0 {
		fmt.Fprintf(app.Out, "omitted: %s\n", strings.Join(rep.Omitted, ", "))
	}
	return nil
}

// TreeCmd builds a stemma and writes it in the chosen format.
type TreeCmd struct {
	IDs    []string `arg:"" name:"ids" help:"Manuscript IDs"`
	Method string   `help:"Linkage method (single, complete, average, weighted, centroid, median, ward)"`
	Format string   `help:"Output format (newick, png, svg, base64)" default:"newick"`
	DPI    int      `help:"Figure resolution"`
	Out    string   `help:"Write to this file instead of standard output" type:"path"`
}

func (c *TreeCmd) Run(app *App, ctx context.Context) error {
	mode, err := stemma.ParseMode(c.Format)
	if err != nil {
		return err
	}
	if mode == stemma.ModePNG && c.Out == "" {
		return errors.NewValidation("out", "png output needs --out")
	}
	opts := stemma.Options{Method: c.Method, Mode: mode, DPI: c.DPI}
	if opts.Method == "" {
		opts.Method = app.Cfg.Tree.Method
	}
	if opts.DPI == 0 {
		opts.DPI = app.Cfg.Tree.DPI
	}

	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	rep, err := svc.Tree(ctx, c.IDs, opts)
	if err != nil {
		return err
	}
	if rep.Method != rep.Attempts[0] {
		logging.Warn("linkage method fell back", "requested", rep.Attempts[0], "used", rep.Method)
	}

	var data []byte
	switch mode {
	case stemma.ModeNewick:
		data = []byte(rep.Newick + "\n")
	case stemma.ModePNG:
		data = rep.Image
	case stemma.ModeSVG:
		data = []byte(rep.SVG)
	case stemma.ModeBase64:
		data = []byte(rep.Base64 + "\n")
	}
	if c.Out == "" {
		_, err := app.Out.Write(data)
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "wrote %s (%s linkage)\n", c.Out, rep.Method)
	return nil
}

// ExportCmd writes a report bundle.
type ExportCmd struct {
	IDs    []string `arg:"" name:"ids" help:"Manuscript IDs"`
	Method string   `help:"Linkage method for the bundled stemma"`
	Out    string   `help:"Bundle path (default stemma-<time>.stemma.tar.xz)" type:"path"`
}

func (c *ExportCmd) Run(app *App, ctx context.Context) error {
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}
	method := c.Method
	if method == "" {
		method = app.Cfg.Tree.Method
	}
	rep, err := svc.Report(ctx, c.IDs, method)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = "stemma-" + rep.GeneratedAt.Format("20060102T150405Z") + archive.Extension
	}
	if err := archive.Export(out, rep); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "wrote %s (%d manuscripts)\n", out, len(rep.Manuscripts))
	return nil
}

// ReportCmd verifies a bundle and prints its summary.
type ReportCmd struct {
	File string `arg:"" help:"Report bundle" type:"existingfile"`
	JSON bool   `help:"Print the full report as JSON"`
}

func (c *ReportCmd) Run(app *App) error {
	rep, manifest, err := archive.Import(c.File)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(app.Out, rep)
	}
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%d\n", rep.Version)
	fmt.Fprintf(tw, "generated\t%s\n", rep.GeneratedAt.Format(time.RFC3339))
	for _, w := range rep.Manuscripts {
		fmt.Fprintf(tw, "manuscript\t%s\t%s\n", w.Sigla, w.ID)
	}
	if len(rep.Omitted) > 0 {
		fmt.Fprintf(tw, "omitted\t%s\n", strings.Join(rep.Omitted, ", "))
	}
	fmt.Fprintf(tw, "verses\t%d\n", rep.Stats.Verses)
	fmt.Fprintf(tw, "varying verses\t%d\n", rep.Stats.VaryingVerses)
	fmt.Fprintf(tw, "failures\t%d\n", len(rep.Failures))
	if rep.Newick != "" {
		fmt.Fprintf(tw, "method\t%s\n", rep.Method)
		fmt.Fprintf(tw, "newick\t%s\n", rep.Newick)
	}
	fmt.Fprintf(tw, "files verified\t%d\n", len(manifest.Files))
	return tw.Flush()
}

// NewickCmd groups Newick utilities.
type NewickCmd struct {
	Check NewickCheckCmd `cmd:"" help:"Parse a Newick file and list its leaves"`
}

// NewickCheckCmd validates a Newick file.
type NewickCheckCmd struct {
	File   string   `arg:"" help:"Newick file" type:"existingfile"`
	Labels []string `help:"Labels that must each appear exactly once as a leaf"`
}

func (c *NewickCheckCmd) Run(app *App) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	s := strings.TrimSpace(string(data))
	if len(c.Labels) > 0 {
		if err := archive.CheckNewick(s, c.Labels); err != nil {
			return err
		}
	}
	root, err := newick.Parse(s)
	if err != nil {
		return err
	}
	leaves := root.Leaves()
	fmt.Fprintf(app.Out, "%s: %d leaves\n", filepath.Base(c.File), len(leaves))
	for _, l := range leaves {
		fmt.Fprintln(app.Out, l)
	}
	return nil
}

// ServeCmd starts the REST API.
type ServeCmd struct {
	Port      int    `help:"Listen port (overrides configuration)"`
	Artifacts string `help:"Directory for rendered trees" type:"path"`
}

func (c *ServeCmd) Run(app *App, ctx context.Context) error {
	if c.Port != 0 {
		app.Cfg.Server.Port = c.Port
	}
	if c.Artifacts != "" {
		app.Cfg.Server.ArtifactsDir = c.Artifacts
	}
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}

	dir := app.Cfg.Server.ArtifactsDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "stemma-artifacts-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	artifacts, err := cas.NewStore(dir)
	if err != nil {
		return err
	}
	return api.New(app.Cfg, svc, artifacts, version).Run(ctx)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(app *App) error {
	d := sqlite.Compiled()
	fmt.Fprintf(app.Out, "stemma version %s\n", version)
	fmt.Fprintf(app.Out, "sqlite driver %s (%s, %s)\n", d.Name, d.Kind, d.Package)
	return nil
}
