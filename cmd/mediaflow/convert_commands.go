package main

import (
	"fmt"
	"path/filepath"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/pipeline"
	"github.com/spf13/cobra"
)

func newImageCommand(ctx *commandContext) *cobra.Command {
	var (
		target  string
		width   int
		height  int
		quality int
	)

	cmd := &cobra.Command{
		Use:   "image <source>",
		Short: "Convert an image to another format",
		Long: "Convert an image file. The output is written next to the source as\n" +
			"<name>_<id>.<format>. Width and height are optional; giving only one\n" +
			"keeps the aspect ratio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, err := ctx.ensureEngine()
			if err != nil {
				return err
			}
			defer pipeline.Shutdown()

			req := domain.NewImageRequest(args[0], filepath.Base(args[0]), target)
			req.Width = width
			req.Height = height
			req.Quality = cfg.Convert.DefaultQuality
			if cmd.Flags().Changed("quality") {
				req.Quality = quality
			}

			return printResult(cmd, engine.Images.ConvertImage(cmd.Context(), req))
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format (jpg, png, gif, bmp, tiff, webp, ico, svg, avif, heif)")
	cmd.Flags().IntVar(&width, "width", 0, "Output width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Output height in pixels")
	cmd.Flags().IntVarP(&quality, "quality", "q", domain.DefaultQuality, "Encoder quality for lossy formats (1-100)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newSubtitleCommand(ctx *commandContext) *cobra.Command {
	var (
		target   string
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "subtitle <source>",
		Short: "Convert a subtitle file between SRT, VTT, ASS and SSA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			req := domain.NewSubtitleRequest(args[0], filepath.Base(args[0]), target)
			req.Encoding = encoding
			return printResult(cmd, engine.Subtitles.ConvertSubtitle(cmd.Context(), req))
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format (srt, vtt, ass, ssa)")
	cmd.Flags().StringVarP(&encoding, "encoding", "e", domain.EncodingAuto, "Source charset, or auto to detect it")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// printResult writes the result as JSON and turns a Failure into a non-zero
// exit.
func printResult(cmd *cobra.Command, result domain.Result) error {
	if err := writeJSON(cmd, result); err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("conversion failed: %s", result.Failure.Error())
	}
	return nil
}
