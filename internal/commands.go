package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/starford/tagshelf/internal/storage"
	"github.com/starford/tagshelf/internal/transfer"
)

// startCLI opens the components for a one-shot command and loads the active
// library. Logs go to stderr so command output stays clean.
func startCLI(ctx context.Context, opts []Option) (*components, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := open(ctx, app.config, app.logger(os.Stderr))
	if err != nil {
		return nil, err
	}
	if err := c.session.Start(ctx); err != nil {
		c.close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	return c, nil
}

// ExportLibrary writes the active library to out. "-" writes JSON to stdout;
// otherwise the format follows the file extension.
func ExportLibrary(ctx context.Context, out string, stdout io.Writer, opts ...Option) error {
	c, err := startCLI(ctx, opts)
	if err != nil {
		return err
	}
	defer c.close()

	doc, err := c.svc.Export(ctx)
	if err != nil {
		return err
	}

	format := transfer.FormatJSON
	if out != "-" {
		format = transfer.FormatForPath(out)
	}
	data, err := transfer.Encode(doc, format)
	if err != nil {
		return err
	}

	if out == "-" {
		_, err = stdout.Write(data)
		return err
	}

	files, err := storage.NewFS(filepath.Dir(out))
	if err != nil {
		return err
	}
	if err := files.Write(filepath.Base(out), data); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	c.logger.Info("library exported",
		slog.String("library", doc.Library.Name),
		slog.String("path", out))
	return nil
}

// ImportDocument imports file into the active library and prints a summary.
func ImportDocument(ctx context.Context, file, mode string, stdout io.Writer, opts ...Option) error {
	m, err := transfer.ParseMode(mode)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	c, err := startCLI(ctx, opts)
	if err != nil {
		return err
	}
	defer c.close()

	res, err := c.svc.ImportData(ctx, data, m, filepath.Base(file))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s import: %d groups, %d categories, %d tags added, %d tags skipped\n",
		res.Mode, res.GroupsAdded, res.CategoriesAdded, res.TagsAdded, res.TagsSkipped)
	for _, w := range res.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	return nil
}

// ListLibraries prints every library with its counts. The active one is
// marked with an asterisk.
func ListLibraries(ctx context.Context, stdout io.Writer, opts ...Option) error {
	c, err := startCLI(ctx, opts)
	if err != nil {
		return err
	}
	defer c.close()

	libs, err := c.svc.ListLibraries(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tGROUPS\tCATEGORIES\tTAGS")
	for _, l := range libs {
		mark := ""
		if l.Active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			mark, l.ID, l.Name, l.Counts.Groups, l.Counts.Categories, l.Counts.Tags)
	}
	return tw.Flush()
}
