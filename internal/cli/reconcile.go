package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/services"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(matchCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Print every decision of the pass")
	matchCmd.Flags().Int64("sale", 0, "Sale id to link the payment to")
	matchCmd.Flags().String("folio", "", "Folio of the open sale to link the payment to")
	matchCmd.Flags().String("user", os.Getenv("USER"), "Operator recorded on the audit trail")
}

// ─── run ────────────────────────────────────────────────────────────────────

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass over the pending payments",
	RunE:  runReconciliation,
}

func runReconciliation(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := svc.Reconciliation.RunReconciliation(cmd.Context(), models.TriggerManual)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: processed=%d matched=%d review=%d skipped=%d\n",
		result.BatchID, result.Processed, result.Matched, result.Review, result.Skipped)
	if !verbose || len(result.Decisions) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAYMENT\tOUTCOME\tSALE\tCANDIDATES\tBEST\tREASON")
	for _, d := range result.Decisions {
		sale := "-"
		if d.SaleID != 0 {
			sale = strconv.FormatInt(d.SaleID, 10)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.0f\t%s\n", d.PaymentID, d.Outcome, sale, d.Candidates, d.BestScore(), d.Reason)
	}
	return w.Flush()
}

// ─── candidates ─────────────────────────────────────────────────────────────

var candidatesCmd = &cobra.Command{
	Use:   "candidates PAYMENT_ID",
	Short: "List the open sales a payment could belong to",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidates,
}

func runCandidates(cmd *cobra.Command, args []string) error {
	paymentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid payment id %q", args[0])
	}

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := svc.Reconciliation.GetCandidates(cmd.Context(), paymentID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := result.Payment
	fmt.Fprintf(out, "Payment %d: %s %s on %s [%s]\n",
		p.ID, p.Bank, p.Amount.StringFixed(2), p.OperationDate.Format(models.DateLayout), p.Status)
	if len(result.Candidates) == 0 {
		fmt.Fprintln(out, "No candidate sales.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SALE\tFOLIO\tCUSTOMER\tAMOUNT\tSTATUS\tSCORE\tCRITERIA")
	for _, c := range result.Candidates {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.0f\t%s\n",
			c.Sale.ID, c.Sale.Folio, c.Sale.CustomerName, c.Sale.Amount.StringFixed(2), c.Sale.Status,
			c.Score, strings.Join(c.Criteria, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if result.Suggestion != nil {
		fmt.Fprintf(out, "Engine would decide: %s %s\n", result.Suggestion.Outcome, result.Suggestion.Reason)
	}
	return nil
}

// ─── match ──────────────────────────────────────────────────────────────────

var matchCmd = &cobra.Command{
	Use:   "match PAYMENT_ID",
	Short: "Link a pending or in-review payment to a sale by hand",
	Long: `Link a payment to a sale chosen by the operator, by sale id (--sale)
or by folio (--folio). The sale must not be paid already.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	paymentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid payment id %q", args[0])
	}
	saleID, _ := cmd.Flags().GetInt64("sale")
	folio, _ := cmd.Flags().GetString("folio")
	user, _ := cmd.Flags().GetString("user")
	if saleID == 0 && folio == "" {
		return fmt.Errorf("one of --sale or --folio is required")
	}

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := svc.Reconciliation.ManualMatch(cmd.Context(), services.ManualMatchRequest{
		PaymentID: paymentID,
		SaleID:    saleID,
		Folio:     folio,
		UserID:    user,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Payment %d linked to sale %d (%s)\n", result.PaymentID, result.SaleID, result.Folio)
	return nil
}
