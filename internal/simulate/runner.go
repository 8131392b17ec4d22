package simulate

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"go.uber.org/zap"
)

// Result is the outcome of a scenario run.
type Result struct {
	Applied  int
	Rejected int
	Events   []engine.Event
	Markets  []engine.Snapshot
	Balances map[string]string
	Digest   common.Hash
	End      time.Time
}

// Runner replays a scenario and prints what happens.
type Runner struct {
	scenario *Scenario
	out      io.Writer
	logger   *zap.Logger
	names    map[common.Address]string
}

// NewRunner creates a runner writing its report to out.
func NewRunner(s *Scenario, out io.Writer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{scenario: s, out: out, logger: logger, names: s.Names()}
}

// Run applies every step in order. A step that fails with its expected
// error kind counts as rejected; any other failure, or an expected error
// that does not happen, stops the run.
func (r *Runner) Run() (*Result, error) {
	cfg, err := r.scenario.EngineConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logger = r.logger
	eng, err := engine.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	res := &Result{Balances: make(map[string]string)}
	lastMarket := ""

	for i, st := range r.scenario.Steps {
		now := r.scenario.Start.Add(st.At)
		res.End = now

		if st.Op == string(engine.OpCreateMarket) && st.Market == "" {
			st.Market = r.scenario.MarketID(i)
		}
		tx, err := r.scenario.Tx(i, st, lastMarket)
		if err != nil {
			return res, fmt.Errorf("step %d: %w", i+1, err)
		}

		rcpt, err := eng.Apply(tx, now)
		switch {
		case err != nil && st.ExpectError != "" && kindMatches(err, st.ExpectError):
			res.Rejected++
			fmt.Fprintf(r.out, "%s  #%-3d %-28s rejected as expected: %v\n", r.stamp(now), i+1, tx.Op, err)
			continue
		case err != nil:
			return res, fmt.Errorf("step %d (%s): %w", i+1, tx.Op, err)
		case st.ExpectError != "":
			return res, fmt.Errorf("step %d (%s): expected %s, got success", i+1, tx.Op, st.ExpectError)
		}

		res.Applied++
		if tx.Op == engine.OpCreateMarket {
			lastMarket = tx.MarketID
		}
		for _, ev := range rcpt.Events {
			res.Events = append(res.Events, ev)
			fmt.Fprintf(r.out, "%s  #%-3d %s\n", r.stamp(now), i+1, r.describe(ev))
		}
	}

	res.Markets, err = eng.Markets(res.End)
	if err != nil {
		return res, fmt.Errorf("list markets: %w", err)
	}
	for _, name := range r.scenario.AccountNames() {
		addr, _ := r.scenario.address(name)
		res.Balances[name] = wad.Format(eng.Balance(addr))
	}
	res.Digest, err = eng.StateDigest()
	if err != nil {
		return res, fmt.Errorf("state digest: %w", err)
	}

	r.report(res)
	return res, nil
}

func (r *Runner) stamp(t time.Time) string {
	return "+" + t.Sub(r.scenario.Start).String()
}

func (r *Runner) name(a common.Address) string {
	if n, ok := r.names[a]; ok {
		return n
	}
	return a.Hex()
}

func (r *Runner) describe(ev engine.Event) string {
	line := fmt.Sprintf("%-26s %s", ev.Type, r.name(ev.Actor))
	if ev.MarketID != "" {
		line += " market=" + ev.MarketID
	}
	if ev.Outcome.String() != "" {
		line += " outcome=" + ev.Outcome.String()
	}
	if ev.Shares != nil {
		line += " shares=" + wad.Format(ev.Shares)
	}
	if ev.Amount != nil {
		line += " amount=" + wad.Format(ev.Amount)
	}
	if ev.PriceYes != nil && ev.PriceNo != nil {
		line += " p_yes=" + wad.Format(ev.PriceYes) + " p_no=" + wad.Format(ev.PriceNo)
	}
	if ev.Source != "" {
		line += " source=" + ev.Source
	}
	return line
}

func (r *Runner) report(res *Result) {
	fmt.Fprintf(r.out, "\napplied=%d rejected=%d events=%d\n\n", res.Applied, res.Rejected, len(res.Events))

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tSTATUS\tP(YES)\tP(NO)\tB\tCOLLATERAL\tESCROW")
	for _, snap := range res.Markets {
		m := snap.Market
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, snap.EffectiveStatus,
			wad.Format(snap.PriceYes), wad.Format(snap.PriceNo),
			wad.Format(m.B), wad.Format(m.Collateral), wad.Format(snap.EscrowBalance))
	}
	_ = w.Flush()

	fmt.Fprintln(r.out)
	w = tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tBALANCE")
	for _, name := range r.scenario.AccountNames() {
		fmt.Fprintf(w, "%s\t%s\n", name, res.Balances[name])
	}
	_ = w.Flush()

	fmt.Fprintf(r.out, "\nstate digest %s\n", res.Digest.Hex())
}
