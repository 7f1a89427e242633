package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pagesift/pagesift/internal/pipeline"
	"github.com/pagesift/pagesift/internal/raster"
	"github.com/spf13/cobra"
)

// extractCmd runs one extraction from the command line.
var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text, images, or recognized text from a document",
	Long: `Extract a derived representation from a single document.

Examples:
  pagesift extract report.pdf
  pagesift extract report.pdf --format markdown
  pagesift extract report.pdf --format images --output result.json
  pagesift extract scan.pdf --format ocr --language fra --include-images`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		formatStr, _ := cmd.Flags().GetString("format")
		includeImages, _ := cmd.Flags().GetBool("include-images")
		includeMetadata, _ := cmd.Flags().GetBool("include-metadata")
		language, _ := cmd.Flags().GetString("language")
		outputPath, _ := cmd.Flags().GetString("output")

		format, err := pipeline.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		if language == "" {
			language = cfg.Pipeline.Language
		}

		filename := args[0]
		data, err := os.ReadFile(filename) //nolint:gosec // G304: user-provided input file is the point
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filename, err)
		}

		info, err := os.Stat(filename)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", filename, err)
		}

		coordinator := pipeline.New(pipeline.Config{
			Language: cfg.Pipeline.Language,
			Raster: raster.Config{
				MinWidth:   cfg.Pipeline.MinImageWidth,
				MinHeight:  cfg.Pipeline.MinImageHeight,
				Scale:      cfg.Pipeline.RenderScale,
				MaxWorkers: cfg.Pipeline.MaxWorkers,
			},
		})

		res, err := coordinator.Run(context.Background(), pipeline.Request{
			Data:            data,
			Format:          format,
			IncludeMetadata: includeMetadata,
			IncludeImages:   includeImages,
			SourceName:      info.Name(),
			SourceSize:      info.Size(),
			Language:        language,
		})
		if err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}

		return writeResult(cmd, res, includeImages, includeMetadata, outputPath)
	},
}

// writeResult renders the result: bare text for text-bearing formats with
// no extra fields requested, JSON otherwise.
func writeResult(cmd *cobra.Command, res *pipeline.Result, includeImages, includeMetadata bool, outputPath string) error {
	var out []byte
	if res.Text != nil && !includeImages && !includeMetadata {
		out = []byte(*res.Text + "\n")
	} else {
		encoded, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		out = append(encoded, '\n')
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, out, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputPath, err)
		}
		return nil
	}
	_, err := cmd.OutOrStdout().Write(out)
	return err
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("format", "f", "text", "output format (text, markdown, images, ocr)")
	extractCmd.Flags().Bool("include-images", false, "attach extracted images to the result")
	extractCmd.Flags().Bool("include-metadata", false, "attach processing metadata to the result")
	extractCmd.Flags().StringP("language", "l", "", "recognition language (BCP-47 tag or Tesseract code)")
	extractCmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
}
