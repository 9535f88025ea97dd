package main

import (
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/lendsim/internal/lender"
	"github.com/odyssey-erp/lendsim/internal/underwriting"
)

func printSummary(out io.Writer, p lender.Portfolio) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	pr := message.NewPrinter(language.English)
	agg := p.Aggregate

	pr.Fprintf(tw, "product\t%s\t\n", p.Product)
	pr.Fprintf(tw, "weighting\t%s\t\n", p.Weighting)
	pr.Fprintf(tw, "merchants\t%d\t\n", p.Merchants)
	pr.Fprintf(tw, "funded\t%d\t\n", p.Funded)
	pr.Fprintf(tw, "bankrupt\t%d\t\n", p.Bankrupt)
	pr.Fprintf(tw, "lender profit\t%.2f\t\n", agg.LenderProfit)
	pr.Fprintf(tw, "total credit\t%.2f\t\n", agg.TotalCredit)
	pr.Fprintf(tw, "repaid\t%.2f\t\n", agg.Repaid)
	pr.Fprintf(tw, "loss\t%.2f\t\n", agg.Loss)
	pr.Fprintf(tw, "cost of capital\t%.2f\t\n", agg.CostOfCapital)
	pr.Fprintf(tw, "apr\t%.2f%%\t\n", 100*agg.APR)
	pr.Fprintf(tw, "revenue cagr\t%.2f%%\t\n", 100*agg.RevenueCAGR)
	pr.Fprintf(tw, "valuation cagr\t%.2f%%\t\n", 100*agg.ValuationCAGR)
	pr.Fprintf(tw, "bankruptcy rate\t%.2f%%\t\n", 100*agg.BankruptcyRate)
	pr.Fprintf(tw, "sharpe\t%.3f\t\n", p.Sharpe)

	pr.Fprintf(tw, "\t\t\n")
	pr.Fprintf(tw, "predictor\tprofit corr\tbankruptcy corr\t\n")
	for _, pred := range underwriting.Predictors() {
		pr.Fprintf(tw, "%s\t%.3f\t%.3f\t\n", pred, p.ProfitCorrelation[pred], p.BankruptcyCorrelation[pred])
	}
	return tw.Flush()
}
