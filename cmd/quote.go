package cmd

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/lmsr"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a trade against a given LMSR state",
	Long: `Computes the cost of a buy or the payout of a sell, with fees, for an
LMSR state given on the command line. The liquidity parameter comes from
--b or is derived from --subsidy.

Examples:
  # 10 YES shares on a fresh market funded with 100
  lmsr-amm quote --subsidy 100 --outcome YES --shares 10

  # Sell 4 NO shares
  lmsr-amm quote --b 144.27 --q-yes 10 --q-no 6 --side sell --outcome NO --shares 4`,
	RunE: runQuote,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(quoteCmd)
	addQuoteFlags(quoteCmd)
}

func addQuoteFlags(c *cobra.Command) {
	c.Flags().String("b", "", "Liquidity parameter")
	c.Flags().String("subsidy", "", "Initial subsidy to derive b from")
	c.Flags().String("q-yes", "0", "Outstanding YES position")
	c.Flags().String("q-no", "0", "Outstanding NO position")
	c.Flags().String("side", "buy", "buy or sell")
	c.Flags().StringP("outcome", "o", "YES", "YES or NO")
	c.Flags().StringP("shares", "s", "", "Number of shares")
}

// quoteRequest is a trade against an explicit LMSR state.
type quoteRequest struct {
	State   lmsr.State
	Side    string
	Outcome market.Outcome
	Shares  *big.Int
}

// quoteResult mirrors what the engine would charge or pay.
type quoteResult struct {
	Cost     *big.Int
	Fees     engine.Fees
	Total    *big.Int
	PriceYes *big.Int
	PriceNo  *big.Int
}

func runQuote(cmd *cobra.Command, args []string) error {
	req, err := parseQuoteFlags(cmd)
	if err != nil {
		return err
	}
	res, err := computeQuote(req)
	if err != nil {
		return err
	}
	printQuote(cmd.OutOrStdout(), req, res)
	return nil
}

func parseQuoteFlags(cmd *cobra.Command) (*quoteRequest, error) {
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}
	parse := func(name string) (*big.Int, error) {
		v, err := wad.Parse(flag(name))
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		return v, nil
	}

	req := &quoteRequest{Side: strings.ToLower(flag("side"))}
	if req.Side != "buy" && req.Side != "sell" {
		return nil, fmt.Errorf("--side must be buy or sell, got %q", req.Side)
	}

	var err error
	switch {
	case flag("b") != "" && flag("subsidy") != "":
		return nil, fmt.Errorf("use either --b or --subsidy")
	case flag("b") != "":
		req.State.B, err = parse("b")
	case flag("subsidy") != "":
		var subsidy *big.Int
		subsidy, err = parse("subsidy")
		if err == nil {
			req.State.B, err = lmsr.InitialB(subsidy)
		}
	default:
		return nil, fmt.Errorf("one of --b or --subsidy is required")
	}
	if err != nil {
		return nil, err
	}

	if req.State.QYes, err = parse("q-yes"); err != nil {
		return nil, err
	}
	if req.State.QNo, err = parse("q-no"); err != nil {
		return nil, err
	}
	if flag("shares") == "" {
		return nil, fmt.Errorf("--shares is required")
	}
	if req.Shares, err = parse("shares"); err != nil {
		return nil, err
	}
	if req.Outcome, err = market.ParseOutcome(flag("outcome")); err != nil {
		return nil, err
	}
	if !req.Outcome.Tradable() {
		return nil, fmt.Errorf("--outcome must be YES or NO")
	}
	return req, nil
}

func computeQuote(req *quoteRequest) (*quoteResult, error) {
	res := &quoteResult{}

	var err error
	delta := req.Shares
	if req.Side == "buy" {
		res.Cost, err = lmsr.CostToBuy(req.State, req.Outcome, req.Shares)
		if err != nil {
			return nil, err
		}
		res.Total, res.Fees = engine.GrossForNet(res.Cost)
	} else {
		res.Cost, err = lmsr.PayoutForSell(req.State, req.Outcome, req.Shares)
		if err != nil {
			return nil, err
		}
		res.Fees = engine.SplitFees(res.Cost)
		res.Total = wad.Sub(res.Cost, res.Fees.Total())
		delta = new(big.Int).Neg(req.Shares)
	}

	after, err := req.State.Shift(req.Outcome, delta)
	if err != nil {
		return nil, err
	}
	res.PriceYes, res.PriceNo, err = lmsr.Prices(after)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func printQuote(out io.Writer, req *quoteRequest, res *quoteResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() {
		_ = w.Flush()
	}()

	total := "total cost"
	if req.Side == "sell" {
		total = "net payout"
	}
	fmt.Fprintf(w, "%s %s %s\tb=%s\n", req.Side, wad.Format(req.Shares), req.Outcome, wad.Format(req.State.B))
	fmt.Fprintf(w, "lmsr amount\t%s\n", wad.Format(res.Cost))
	fmt.Fprintf(w, "creator fee\t%s\n", wad.Format(res.Fees.Creator))
	fmt.Fprintf(w, "protocol fee\t%s\n", wad.Format(res.Fees.Protocol))
	fmt.Fprintf(w, "lp fee\t%s\n", wad.Format(res.Fees.LP))
	fmt.Fprintf(w, "%s\t%s\n", total, wad.Format(res.Total))
	fmt.Fprintf(w, "price after\tYES %s  NO %s\n", wad.Format(res.PriceYes), wad.Format(res.PriceNo))
}
