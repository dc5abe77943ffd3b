package usecase

import (
	"fmt"
	"strings"

	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// unreadableModel is shown in place of a model number the extractor could not read
const unreadableModel = "(model not readable)"

// Summarize counts results per status and totals the signed discrepancy of mismatches
func Summarize(results []domain.ComparisonResult) domain.Summary {
	summary := domain.Summary{
		Total:          len(results),
		NetDiscrepancy: decimal.Zero,
	}

	for _, r := range results {
		switch r.Status {
		case domain.StatusMatch:
			summary.Matched++
		case domain.StatusMismatch:
			summary.Mismatched++
			if r.Discrepancy != nil {
				summary.NetDiscrepancy = summary.NetDiscrepancy.Add(*r.Discrepancy)
			}
		case domain.StatusModelNotFound:
			summary.NotFound++
		default:
			summary.ExtractionIssues++
		}
	}

	return summary
}

// FormatEmail renders the plain-text summary sent back to the customer.
// Every line item appears, including those that need manual review.
func FormatEmail(results []domain.ComparisonResult, priceBookName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Subject: Review of your Purchase Order - Ref Price Book: %s\n\n", priceBookName)
	b.WriteString("Hi,\n\n")
	fmt.Fprintf(&b, "Thank you for your Purchase Order. We have reviewed it against our %q price book. ", priceBookName)
	b.WriteString("The following details were found for the line items based on the data provided:\n\n")

	if len(results) == 0 {
		b.WriteString("- No line items could be found in the document. Manual review required.\n")
	}

	for _, r := range results {
		model := r.Model
		if strings.TrimSpace(model) == "" {
			model = unreadableModel
		}

		fmt.Fprintf(&b, "- Line %d: %s\n", r.Line, model)
		fmt.Fprintf(&b, "    PO Price: %s\n", formatMoney(r.POPrice))
		fmt.Fprintf(&b, "    Status: %s\n", statusLine(r))
	}

	fmt.Fprintf(&b, "\nPlease review any items marked with discrepancies or issues based on the %q pricing.\n\n", priceBookName)
	b.WriteString("Best regards,\n\nOrderGuard\n")

	return b.String()
}

// statusLine describes one result in words
func statusLine(r domain.ComparisonResult) string {
	switch r.Status {
	case domain.StatusMatch:
		return "Matched price book"
	case domain.StatusMismatch:
		return fmt.Sprintf("Mismatch - price book price is %s. Discrepancy: %s",
			formatMoney(r.BookPrice), formatSigned(r.Discrepancy))
	case domain.StatusModelNotFound:
		return "Model not found in selected price book. Please verify the model number."
	default:
		return "Data extraction issue on this PO line. Manual review required."
	}
}

// formatMoney renders an optional amount with two decimals
func formatMoney(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(pricePrecision)
	}
	return "$" + d.StringFixed(pricePrecision)
}

// formatSigned renders a discrepancy with an explicit sign
func formatSigned(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	if d.IsPositive() {
		return "+" + formatMoney(d)
	}
	return formatMoney(d)
}
