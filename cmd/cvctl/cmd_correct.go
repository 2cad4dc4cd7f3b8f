package main

import (
	"fmt"
	"os"
	"path/filepath"

	"resume-renderer/internal/document"
	"resume-renderer/internal/model"
	infra "resume-renderer/pkg/infrastructure"

	"github.com/spf13/cobra"
)

var (
	correctStrict bool
	correctDiff   bool
	previewOut    string
)

var correctCmd = &cobra.Command{
	Use:   "correct <file|->",
	Short: "Repair a document and print the corrected YAML",
	Long: `Runs the document corrector and writes the corrected document to stdout.
Repairs and dropped keys are reported on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

var previewCmd = &cobra.Command{
	Use:   "preview <file|->",
	Short: "Correct a document and write the HTML the Chromium engine would print",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	correctCmd.Flags().BoolVar(&correctStrict, "strict", false, "reject unknown top-level keys instead of dropping them")
	correctCmd.Flags().BoolVar(&correctDiff, "diff", false, "print a line diff of the changes to stderr")
	previewCmd.Flags().StringVarP(&previewOut, "output", "o", "", "HTML file to write (default: <slug>_CV.html)")
}

func correct(cmd *cobra.Command, name string, strict bool) (*document.Corrected, error) {
	raw, err := readInput(cmd, name)
	if err != nil {
		return nil, err
	}
	c := document.NewCorrector(document.Options{DefaultTheme: cfg.DefaultTheme, Strict: strict}, newLogger(cmd))
	return c.Correct(raw)
}

func runCorrect(cmd *cobra.Command, args []string) error {
	corrected, err := correct(cmd, args[0], correctStrict)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	if s := corrected.Report.Summary(); s != "" {
		fmt.Fprintln(stderr, s)
	}
	if correctDiff && corrected.Report.Diff != "" {
		fmt.Fprintln(stderr, corrected.Report.Diff)
	}
	fmt.Fprint(cmd.OutOrStdout(), corrected.Text)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	corrected, err := correct(cmd, args[0], false)
	if err != nil {
		return err
	}
	doc, err := model.Parse(corrected.Text)
	if err != nil {
		return err
	}
	html, err := infra.BuildHTML(doc)
	if err != nil {
		return err
	}
	out := previewOut
	if out == "" {
		out = document.Slug(corrected.Name) + "_CV.html"
	}
	if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
		return err
	}
	abs, _ := filepath.Abs(out)
	fmt.Fprintf(cmd.OutOrStdout(), "Saved preview HTML to %s\n", abs)
	return nil
}
