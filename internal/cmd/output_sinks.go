package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragly/xpanel/internal/output"
)

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers the shared --output-format/--out/--out-dir flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to <dir>/<command>.<ext>")
}

// outputTarget is where a command's rendered result goes.
type outputTarget struct {
	format output.Format
	path   string // "" means stdout
}

func resolveOutputTarget(cmd *cobra.Command, name string) (outputTarget, error) {
	flags := cmd.Flags()
	formatValue, _ := flags.GetString("output-format")
	outPath, _ := flags.GetString("out")
	outDir, _ := flags.GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return outputTarget{}, err
	}
	switch {
	case outPath != "" && outDir != "":
		return outputTarget{}, errors.New("--out and --out-dir are mutually exclusive")
	case outPath == "-":
		outPath = ""
	case outDir != "":
		outPath = filepath.Join(outDir, sanitizeFilename(name)+"."+format.Extension())
	}
	return outputTarget{format: format, path: outPath}, nil
}

// write prints rendered followed by exactly one newline.
func (t outputTarget) write(stdout io.Writer, rendered string) error {
	w := stdout
	if t.path != "" {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		file, err := os.Create(t.path)
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()
		w = file
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(rendered, "\n"))
	return err
}

// emit renders with the requested formatter and writes to the resolved
// target. name picks the file name when --out-dir is set.
func emit(cmd *cobra.Command, name string, render func(output.Formatter) (string, error)) error {
	return emitFormat(cmd, name, func(format output.Format) (string, error) {
		return render(output.NewFormatter(format))
	})
}

// emitFormat is emit for results that have no Formatter method.
func emitFormat(cmd *cobra.Command, name string, render func(output.Format) (string, error)) error {
	target, err := resolveOutputTarget(cmd, name)
	if err != nil {
		return err
	}
	rendered, err := render(target.format)
	if err != nil {
		return err
	}
	return target.write(cmd.OutOrStdout(), rendered)
}
