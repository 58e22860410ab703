package protocol

import (
	"fmt"
	"strconv"
	"strings"

	match "github.com/0x5487/tradesim"
)

const (
	Greeting   = "WELCOME tradesim. Type HELP for commands."
	HelpLine   = "Commands: NEW LIMIT/NEW MARKET/CANCEL/BOOK/DEPTH/TRADES/HELP/QUIT"
	Bye        = "BYE"
	Cancelled  = "CANCELLED"
	NotFound   = "NOT FOUND"
	NoTrades   = "(no trades)"
	noneMarker = "none"
)

// Usage lists every command shape, one per line.
var Usage = []string{
	"  " + usageNewLimit,
	"  " + usageNewMarket,
	"  " + usageCancel,
	"  BOOK",
	"  " + usageDepth,
	"  TRADES",
	"  HELP",
	"  QUIT",
}

// FormatAck acknowledges an accepted order: "OK <id> <n> trades".
func FormatAck(exec *match.Execution) string {
	return fmt.Sprintf("OK %d %d trades", exec.OrderID, len(exec.Trades))
}

// FormatCancel renders the outcome of a CANCEL.
func FormatCancel(ok bool) string {
	if ok {
		return Cancelled
	}
	return NotFound
}

// FormatError renders a rejected request as "ERROR <reason>".
func FormatError(err error) string {
	return "ERROR " + err.Error()
}

// FormatBook renders the top of book, e.g. "BOOK BID 75@10.30 | ASK none".
func FormatBook(top match.TopOfBook) string {
	var sb strings.Builder
	sb.WriteString("BOOK BID ")
	writeLevel(&sb, top.HasBid, top.BidQty, top.BidPrice)
	sb.WriteString(" | ASK ")
	writeLevel(&sb, top.HasAsk, top.AskQty, top.AskPrice)
	return sb.String()
}

func writeLevel(sb *strings.Builder, ok bool, qty match.Qty, price match.Price) {
	if !ok {
		sb.WriteString(noneMarker)
		return
	}
	sb.WriteString(strconv.FormatInt(qty, 10))
	sb.WriteByte('@')
	sb.WriteString(price.String())
}

// FormatDepth renders every level on one line, best first:
// "DEPTH BID 75@10.30 10@10.20 | ASK none".
func FormatDepth(depth *match.Depth) string {
	var sb strings.Builder
	sb.WriteString("DEPTH BID")
	writeLevels(&sb, depth.Bids)
	sb.WriteString(" | ASK")
	writeLevels(&sb, depth.Asks)
	return sb.String()
}

func writeLevels(sb *strings.Builder, items []*match.DepthItem) {
	if len(items) == 0 {
		sb.WriteByte(' ')
		sb.WriteString(noneMarker)
		return
	}
	for _, item := range items {
		sb.WriteByte(' ')
		writeLevel(sb, true, item.Size, item.Price)
	}
}

// FormatTrade renders one trade, e.g. "TRADE id=1 maker=1 taker=3 qty=50 px=10.20".
func FormatTrade(tr match.Trade) string {
	return fmt.Sprintf("TRADE id=%d maker=%d taker=%d qty=%d px=%s",
		tr.ID, tr.MakerID, tr.TakerID, tr.Qty, tr.Price)
}

// FormatTrades renders a TRADES response: a "TRADES <n>" header followed by
// one line per trade, oldest first.
func FormatTrades(trades []match.Trade) []string {
	lines := make([]string, 0, len(trades)+1)
	lines = append(lines, "TRADES "+strconv.Itoa(len(trades)))
	for _, tr := range trades {
		lines = append(lines, FormatTrade(tr))
	}
	return lines
}

// ParseBook reads a BOOK response line back into a TopOfBook.
func ParseBook(line string) (match.TopOfBook, error) {
	var top match.TopOfBook

	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "BOOK ")
	if !ok {
		return top, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	bid, ask, ok := strings.Cut(rest, "|")
	if !ok {
		return top, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}

	var err error
	if top.HasBid, top.BidQty, top.BidPrice, err = parseLevel(bid, "BID"); err != nil {
		return match.TopOfBook{}, err
	}
	if top.HasAsk, top.AskQty, top.AskPrice, err = parseLevel(ask, "ASK"); err != nil {
		return match.TopOfBook{}, err
	}
	return top, nil
}

func parseLevel(s, tag string) (bool, match.Qty, match.Price, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 || fields[0] != tag {
		return false, 0, 0, fmt.Errorf("%w: %q", ErrMalformedResponse, s)
	}
	if fields[1] == noneMarker {
		return false, 0, 0, nil
	}

	qtyStr, pxStr, ok := strings.Cut(fields[1], "@")
	if !ok {
		return false, 0, 0, fmt.Errorf("%w: %q", ErrMalformedResponse, fields[1])
	}
	qty, err := strconv.ParseInt(qtyStr, 10, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("%w: %q", ErrMalformedResponse, fields[1])
	}
	price, err := match.ParsePrice(pxStr)
	if err != nil {
		return false, 0, 0, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return true, qty, price, nil
}
