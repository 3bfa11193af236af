package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	quoteID    string
	quoteLimit int
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Quotation snapshot commands",
}

var quotePutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Store a quotation snapshot from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotePut,
}

var quoteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored quotation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteShow,
}

var quoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored quotations",
	RunE:  runQuoteList,
}

var quoteDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored quotation",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteDelete,
}

func init() {
	quotePutCmd.Flags().StringVar(&quoteID, "id", "", "Quotation ID (default: the file's id, else generated)")
	quoteListCmd.Flags().IntVar(&quoteLimit, "limit", 50, "Maximum quotations to list, 0 for all")

	quoteCmd.AddCommand(quotePutCmd, quoteShowCmd, quoteListCmd, quoteDeleteCmd)
	rootCmd.AddCommand(quoteCmd)
}

func runQuotePut(cmd *cobra.Command, args []string) error {
	q, err := readQuotation(args[0])
	if err != nil {
		return err
	}
	if quoteID != "" {
		q.ID = quoteID
	}

	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Quotations.Put(cmd.Context(), q); err != nil {
		return fmt.Errorf("failed to store quotation: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Quotation stored: %s (%s)\n", q.Number, q.ID)
	return nil
}

func runQuoteShow(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	q, err := s.Quotations.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get quotation: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(q)
}

func runQuoteList(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	quotations, err := s.Quotations.List(cmd.Context(), quoteLimit)
	if err != nil {
		return fmt.Errorf("failed to list quotations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(quotations) == 0 {
		fmt.Fprintln(out, "No quotations found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNUMBER\tCLIENT\tTOTAL\tUPDATED")
	for _, q := range quotations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			q.ID,
			q.Number,
			q.Client.Name,
			q.Totals.Total,
			q.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()
	return nil
}

func runQuoteDelete(cmd *cobra.Command, args []string) error {
	s, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Quotations.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete quotation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Quotation deleted: %s\n", args[0])
	return nil
}
