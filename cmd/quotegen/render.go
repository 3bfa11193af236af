package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/quote"
)

var (
	renderFile       string
	renderTemplateID string
	renderMode       string
	renderOutput     string
	renderOptions    []string
)

var renderCmd = &cobra.Command{
	Use:   "render [quotation-id]",
	Short: "Render a quotation to an HTML or PDF file",
	Long: `Render a stored quotation, or a quotation JSON file given with --file.

Examples:
  # PDF of a stored quotation with the default template
  quotegen render q-1001 -o q-1001.pdf

  # Draft PDF from a JSON snapshot with an explicit template
  quotegen render --file quotation.json --template <id> --mode pdf+watermark

  # HTML preview on stdout
  quotegen render q-1001 --mode html -o -

  # Page options
  quotegen render q-1001 --option format=Letter --option orientation=landscape`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderFile, "file", "f", "", "Quotation JSON file to render instead of a stored quotation")
	renderCmd.Flags().StringVarP(&renderTemplateID, "template", "t", "", "Template ID (default: the scope default)")
	renderCmd.Flags().StringVarP(&renderMode, "mode", "m", "pdf", "Mode: html, pdf, pdf+watermark or pdf+headerFooter")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Output file, - for stdout (default: suggested filename)")
	renderCmd.Flags().StringArrayVar(&renderOptions, "option", nil, "Page option as key=value (repeatable)")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	req := document.Request{
		TemplateID: renderTemplateID,
		Mode:       renderMode,
		Options:    parseOptions(renderOptions),
	}

	switch {
	case renderFile != "":
		q, err := readQuotation(renderFile)
		if err != nil {
			return err
		}
		req.QuotationID = q.ID
		req.Data = q.Context()
	case len(args) == 1:
		req.QuotationID = args[0]
	default:
		return fmt.Errorf("a quotation id or --file is required")
	}

	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Documents.Generate(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	if renderOutput == "-" {
		_, err := cmd.OutOrStdout().Write(res.Content)
		return err
	}
	path := renderOutput
	if path == "" {
		path = res.Filename
	}
	if err := os.WriteFile(path, res.Content, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (%d bytes, template %s v%d, %s)\n",
		path, len(res.Content), res.TemplateID, res.TemplateVersion, res.Source)
	return nil
}

// parseOptions turns key=value pairs into raw page options. Booleans and
// numbers are converted; margin.<side> keys are grouped under margins.
func parseOptions(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	opts := make(map[string]any, len(pairs))
	margins := map[string]any{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if side, ok := strings.CutPrefix(key, "margin."); ok {
			margins[side] = value
			continue
		}
		switch value {
		case "true":
			opts[key] = true
		case "false":
			opts[key] = false
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				opts[key] = n
			} else {
				opts[key] = value
			}
		}
	}
	if len(margins) > 0 {
		opts["margins"] = margins
	}
	return opts
}

func readQuotation(path string) (*quote.Quotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quotation file: %w", err)
	}
	q := &quote.Quotation{}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("failed to parse quotation file: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quotation: %w", err)
	}
	return q, nil
}
