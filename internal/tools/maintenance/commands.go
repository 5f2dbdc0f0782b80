package maintenance

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/louisbranch/folio/internal/services/ledger/consumer"
	"github.com/louisbranch/folio/internal/services/ledger/domain/catalog"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/outbox"
	"github.com/louisbranch/folio/internal/services/ledger/projection"
	"github.com/louisbranch/folio/internal/services/ledger/query"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

type rebuildCmd struct {
	settle time.Duration
}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "truncate read models and replay every stream" }
func (*rebuildCmd) Usage() string {
	return `rebuild

  Deletes every read model row, resets the projection cursors and replays all
  streams from the first event. Transient failures are retried for up to
  -settle; halted streams are reported.
`
}

func (c *rebuildCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.settle, "settle", time.Minute, "how long to keep retrying transient failures")
}

func (c *rebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	store := sess.ledger.Store
	runner, err := projection.NewRunner(store, consumer.Options{Logger: &sess.logger})
	if err != nil {
		return sess.fail("projection runner: %v", err)
	}
	summary, err := projection.Rebuild(ctx, store, runner, c.settle)
	if err != nil {
		return sess.fail("rebuild: %v", err)
	}
	if sess.json {
		return sess.writeJSON(summary)
	}
	fmt.Fprintf(sess.out, "Rebuilt %d streams: %d events applied, %d halted\n", summary.Streams, summary.Applied, summary.Halted+summary.Blocked)
	if summary.Halted+summary.Blocked > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type cursorsCmd struct {
	consumer   string
	haltedOnly bool
}

func (*cursorsCmd) Name() string     { return "cursors" }
func (*cursorsCmd) Synopsis() string { return "report consumer cursors and their lag" }
func (*cursorsCmd) Usage() string {
	return `cursors [-consumer projection|outbox] [-halted]

  Lists every stream with the consumer's applied sequence, lag, status and
  last error.
`
}

func (c *cursorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.consumer, "consumer", projection.ConsumerName, "consumer name (projection or outbox)")
	f.BoolVar(&c.haltedOnly, "halted", false, "only report halted cursors")
}

type cursorRow struct {
	StreamID   string `json:"stream_id"`
	Version    uint64 `json:"version"`
	AppliedSeq uint64 `json:"applied_seq"`
	Lag        uint64 `json:"lag"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

func (c *cursorsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	if err := validConsumer(c.consumer); err != nil {
		return sess.fail("%v", err)
	}
	rows, err := cursorReport(ctx, sess.ledger.Store, c.consumer)
	if err != nil {
		return sess.fail("cursor report: %v", err)
	}
	if c.haltedOnly {
		kept := rows[:0]
		for _, row := range rows {
			if row.Status == string(storage.CursorHalted) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	if sess.json {
		return sess.writeJSON(rows)
	}
	w := sess.table()
	fmt.Fprintln(w, "STREAM\tVERSION\tAPPLIED\tLAG\tSTATUS\tATTEMPTS\tLAST ERROR")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%d\t%s\n", row.StreamID, row.Version, row.AppliedSeq, row.Lag, row.Status, row.Attempts, row.LastError)
	}
	if err := w.Flush(); err != nil {
		return sess.fail("write report: %v", err)
	}
	return subcommands.ExitSuccess
}

// cursorReport joins stream heads with cursors. Streams the consumer never
// touched report status "pending".
func cursorReport(ctx context.Context, store storage.Store, consumerName string) ([]cursorRow, error) {
	streams, err := store.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	cursors, err := store.ListCursors(ctx, consumerName)
	if err != nil {
		return nil, err
	}
	byStream := make(map[string]storage.Cursor, len(cursors))
	for _, cur := range cursors {
		byStream[cur.StreamID] = cur
	}
	rows := make([]cursorRow, 0, len(streams))
	for _, info := range streams {
		row := cursorRow{StreamID: info.StreamID, Version: info.Version, Status: "pending"}
		if cur, ok := byStream[info.StreamID]; ok {
			row.AppliedSeq = cur.AppliedSeq
			row.Status = string(cur.Status)
			row.Attempts = cur.Attempts
			row.LastError = cur.LastError
		}
		if info.Version > row.AppliedSeq {
			row.Lag = info.Version - row.AppliedSeq
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type resumeCmd struct {
	consumer string
}

func (*resumeCmd) Name() string     { return "resume" }
func (*resumeCmd) Synopsis() string { return "reactivate halted stream cursors" }
func (*resumeCmd) Usage() string {
	return `resume [-consumer projection|outbox] <stream-id>...

  Reactivates halted cursors at their current position. The next consumer
  pass retries the event that halted them.
`
}

func (c *resumeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.consumer, "consumer", projection.ConsumerName, "consumer name (projection or outbox)")
}

func (c *resumeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	if err := validConsumer(c.consumer); err != nil {
		return sess.fail("%v", err)
	}
	if f.NArg() == 0 {
		fmt.Fprintln(sess.errOut, "Error: at least one stream id is required")
		return subcommands.ExitUsageError
	}
	for _, streamID := range f.Args() {
		if err := sess.ledger.Store.ResumeCursor(ctx, c.consumer, streamID, time.Now().UTC()); err != nil {
			return sess.fail("resume %s/%s: %v", c.consumer, streamID, err)
		}
		fmt.Fprintf(sess.out, "Resumed %s/%s\n", c.consumer, streamID)
	}
	return subcommands.ExitSuccess
}

func validConsumer(name string) error {
	switch name {
	case projection.ConsumerName, outbox.ConsumerName:
		return nil
	default:
		return fmt.Errorf("unknown consumer %q", name)
	}
}

type verifyCmd struct{}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "load and fold every stream through its aggregate" }
func (*verifyCmd) Usage() string {
	return `verify

  Replays each stream through its aggregate and checks the folded version
  matches the stream head.
`
}
func (*verifyCmd) SetFlags(*flag.FlagSet) {}

type verifyResult struct {
	StreamID string `json:"stream_id"`
	Version  uint64 `json:"version"`
	Error    string `json:"error,omitempty"`
}

func (*verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	results, err := verifyStreams(ctx, sess.ledger.Store)
	if err != nil {
		return sess.fail("verify: %v", err)
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if sess.json {
		if status := sess.writeJSON(results); status != subcommands.ExitSuccess {
			return status
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(sess.out, "FAIL %s: %s\n", r.StreamID, r.Error)
			}
		}
		fmt.Fprintf(sess.out, "Verified %d streams, %d failed\n", len(results), failed)
	}
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func verifyStreams(ctx context.Context, store storage.EventStore) ([]verifyResult, error) {
	streams, err := store.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]verifyResult, 0, len(streams))
	for _, info := range streams {
		result := verifyResult{StreamID: info.StreamID, Version: info.Version}
		events, version, err := store.Load(ctx, info.StreamID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", info.StreamID, err)
		}
		folded, err := catalog.Verify(info.AggregateType, info.EntityID, events)
		switch {
		case err != nil:
			result.Error = err.Error()
		case folded != version:
			result.Error = fmt.Sprintf("folded version %d, stream version %d", folded, version)
		}
		results = append(results, result)
	}
	return results, nil
}

type positionsCmd struct {
	portfolioID string
	prices      priceFlags
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "compute FIFO positions for a portfolio" }
func (*positionsCmd) Usage() string {
	return `positions -portfolio <id> [-price SYMBOL=PRICE]...

  Replays the portfolio's active transactions and prints quantity, cost
  basis and gains per symbol. Unpriced symbols show no market value.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolioID, "portfolio", "", "portfolio id")
	f.Var(&c.prices, "price", "current price as SYMBOL=PRICE (repeatable)")
}

func (c *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	if strings.TrimSpace(c.portfolioID) == "" {
		fmt.Fprintln(sess.errOut, "Error: -portfolio is required")
		return subcommands.ExitUsageError
	}
	prices, err := query.ParsePrices(c.prices)
	if err != nil {
		return sess.fail("%v", err)
	}
	positions, err := sess.ledger.Query.Positions(ctx, c.portfolioID, prices)
	if err != nil {
		return sess.fail("positions: %v", err)
	}
	if sess.json {
		return sess.writeJSON(positions)
	}
	w := sess.table()
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tAVG COST\tCOST BASIS\tMARKET VALUE\tUNREALIZED\tREALIZED\tINCOME")
	for _, p := range positions {
		market, unrealized := "-", "-"
		if p.Priced {
			market = p.MarketValue.StringFixed(2)
			unrealized = p.UnrealizedGain.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol, p.Quantity.String(), p.AverageCost.StringFixed(4), p.CostBasis.StringFixed(2),
			market, unrealized, p.RealizedGain.StringFixed(2), p.Income.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return sess.fail("write report: %v", err)
	}
	return subcommands.ExitSuccess
}

// priceFlags collects repeated -price values.
type priceFlags []string

func (p *priceFlags) String() string     { return strings.Join(*p, ",") }
func (p *priceFlags) Set(v string) error { *p = append(*p, v); return nil }

type incomeCmd struct {
	portfolioID string
}

func (*incomeCmd) Name() string     { return "income" }
func (*incomeCmd) Synopsis() string { return "summarize dividends and interest per symbol" }
func (*incomeCmd) Usage() string {
	return `income -portfolio <id>

  Totals active dividend and interest payments per symbol.
`
}

func (c *incomeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.portfolioID, "portfolio", "", "portfolio id")
}

func (c *incomeCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sess := sessionFrom(args)
	if strings.TrimSpace(c.portfolioID) == "" {
		fmt.Fprintln(sess.errOut, "Error: -portfolio is required")
		return subcommands.ExitUsageError
	}
	income, err := sess.ledger.Query.IncomeSummary(ctx, c.portfolioID)
	if err != nil {
		return sess.fail("income: %v", err)
	}
	if sess.json {
		return sess.writeJSON(income)
	}
	w := sess.table()
	fmt.Fprintln(w, "SYMBOL\tCURRENCY\tDIVIDENDS\tINTEREST\tFEES\tNET\tPAYMENTS")
	for _, inc := range income {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n", inc.Symbol, inc.Currency,
			minorUnits(inc.Dividends), minorUnits(inc.Interest), minorUnits(inc.Fees), minorUnits(inc.Net), inc.Payments)
	}
	if err := w.Flush(); err != nil {
		return sess.fail("write report: %v", err)
	}
	return subcommands.ExitSuccess
}

func minorUnits(m money.Money) string {
	return m.Round().Amount.StringFixed(m.Fraction())
}
