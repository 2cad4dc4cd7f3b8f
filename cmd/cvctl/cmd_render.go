package main

import (
	"encoding/json"
	"fmt"

	"resume-renderer/internal/artifact"
	"resume-renderer/internal/document"
	"resume-renderer/internal/gateway"
	"resume-renderer/internal/handoff"
	"resume-renderer/internal/render"
	"resume-renderer/internal/usecase"
	"resume-renderer/pkg/ai"
	infra "resume-renderer/pkg/infrastructure"

	"github.com/spf13/cobra"
)

var (
	renderOut     string
	renderPersist bool
	renderInline  bool
	renderPrompt  bool
)

var renderCmd = &cobra.Command{
	Use:   "render <file|->",
	Short: "Run the repair loop on a document and render it to PDF",
	Long: `Runs the full generate, correct and render loop. By default the file is the
document itself. With --prompt the file is an instruction for the configured
OpenAI model, which generates the document and receives render errors as
feedback.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "output root (default: RESUME_OUT_DIR or ./generated_resumes)")
	renderCmd.Flags().BoolVar(&renderPersist, "keep-yaml", true, "keep the corrected document next to the PDF")
	renderCmd.Flags().BoolVar(&renderInline, "inline", false, "include the base64 PDF in the printed result")
	renderCmd.Flags().BoolVar(&renderPrompt, "prompt", false, "treat the input as a prompt for the document generator")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd)
	input, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	var generator usecase.Generator = ai.Static{}
	if renderPrompt {
		client, err := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, logger)
		if err != nil {
			return err
		}
		generator = client
	}

	runs, closeRuns, err := infra.OpenRunStore(ctx, cfg.RunsDatabaseURL, logger)
	if err != nil {
		logger.Warn("runs.unavailable", "err", err)
	}
	defer closeRuns()

	strategy := render.NewStrategy(cfg, infra.NewEngine(cfg, logger), artifact.NewResolver(cfg.VerifyPDF, logger), logger)
	store := handoff.New(cfg.HandoffTTL)
	defer store.Close()

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if runs != nil {
		opts = append(opts, usecase.WithRecorder(runs))
	}
	orchestrator := usecase.NewOrchestrator(
		generator,
		document.NewCorrector(document.Options{DefaultTheme: cfg.DefaultTheme}, logger),
		render.NewExecutor(strategy, cfg.OutDir, cfg.MaxLogChars, logger),
		store,
		opts...,
	)

	out, err := orchestrator.Run(ctx, usecase.RunInput{
		Input:           input,
		OutputRoot:      renderOut,
		PersistDocument: renderPersist,
		IncludeInline:   renderInline,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	limits := gateway.Limits{MaxInlineBytes: cfg.MaxInlineBytes, MaxLogChars: cfg.MaxLogChars}
	if out.State != usecase.Succeeded {
		for i, fb := range out.Feedback() {
			fmt.Fprintf(cmd.ErrOrStderr(), "--- attempt %d ---\n%s\n", i+1, fb)
		}
		_ = enc.Encode(gateway.Sanitize(out.Last, limits))
		return fmt.Errorf("rendering failed after %d attempts", len(out.Attempts))
	}
	return enc.Encode(map[string]any{
		"confirmation": out.Confirmation,
		"result":       gateway.Sanitize(out.Last, limits),
	})
}
