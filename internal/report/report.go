package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/philp97/frontier/internal/portfolio"
	"github.com/shopspring/decimal"
)

// Cents rounds amounts to two decimal places and assigns the rounding
// residual to the largest position, so the result sums to total rounded to
// cents exactly.
func Cents(amounts []float64, total float64) []decimal.Decimal {
	if len(amounts) == 0 {
		return nil
	}
	out := make([]decimal.Decimal, len(amounts))
	allocated := decimal.Zero
	largest := 0
	for i, a := range amounts {
		out[i] = decimal.NewFromFloat(a).Round(2)
		allocated = allocated.Add(out[i])
		if out[i].GreaterThan(out[largest]) {
			largest = i
		}
	}
	residual := decimal.NewFromFloat(total).Round(2).Sub(allocated)
	out[largest] = out[largest].Add(residual)
	return out
}

// Write renders res as plain-text tables.
func Write(w io.Writer, res *portfolio.AllocationResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	total := res.Params.TotalAmount

	fmt.Fprintf(tw, "Window\t%s .. %s\t\n", res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	fmt.Fprintf(tw, "Periods\t%d\t\n", res.Periods)
	fmt.Fprintf(tw, "Frontier points\t%d\t\n", len(res.Frontier))
	fmt.Fprintln(tw, "\t\t")

	fmt.Fprintln(tw, "Asset\tMean %\tVolatility %\t")
	for _, s := range res.AssetStats {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t\n", s.Asset, s.MeanReturn, s.Volatility)
	}
	fmt.Fprintln(tw, "\t\t\t")

	p := res.MaxSharpe.Portfolio
	fmt.Fprintf(tw, "Max Sharpe\treturn %.4f%%\tvolatility %.4f%%\tsharpe %.4f\t\n",
		p.ExpectedReturn, p.Volatility, res.MaxSharpe.Sharpe)
	fmt.Fprintln(tw, "\t\t\t")

	sharpe := Cents(res.MaxSharpeWeights, total)
	erc := Cents(res.ERCWeights, total)
	fmt.Fprintln(tw, "Asset\tMax Sharpe\tRisk Parity\t")
	for i, a := range res.Assets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", a, amount(sharpe, i), amount(erc, i))
	}
	fmt.Fprintf(tw, "Total\t%s\t%s\t\n", sumOf(sharpe).StringFixed(2), sumOf(erc).StringFixed(2))
	return tw.Flush()
}

func amount(xs []decimal.Decimal, i int) string {
	if i >= len(xs) {
		return "-"
	}
	return xs[i].StringFixed(2)
}

func sumOf(xs []decimal.Decimal) decimal.Decimal {
	s := decimal.Zero
	for _, x := range xs {
		s = s.Add(x)
	}
	return s
}
