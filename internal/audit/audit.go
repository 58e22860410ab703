// Package audit appends trades and top-of-book samples to per-session CSV
// files. Producers only enqueue rows; a single consumer goroutine owns the files.
package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/disruptor"
	"github.com/rs/xid"
)

var (
	TradesHeader = []string{"ts_ns", "trade_id", "maker_id", "taker_id", "qty", "px", "maker_client", "taker_client"}
	BookHeader   = []string{"ts_ns", "has_bid", "bid_px", "bid_qty", "has_ask", "ask_px", "ask_qty"}
)

var ErrClosed = errors.New("audit trail is closed")

type rowKind uint8

const (
	rowTrade rowKind = iota + 1
	rowBook
)

type row struct {
	kind  rowKind
	tsNs  int64
	trade match.Trade
	top   match.TopOfBook
}

// Trail is an append-only CSV audit trail for one server session.
type Trail struct {
	session    string
	tradesPath string
	bookPath   string

	ring    *disruptor.RingBuffer[row]
	writer  *csvWriter
	dropped atomic.Uint64
	closed  atomic.Bool
	logger  *slog.Logger
}

// Open starts a trail with a fresh session id in dir. buffer is the ring
// capacity and must be a power of 2.
func Open(dir string, buffer int64, logger *slog.Logger) (*Trail, error) {
	return OpenSession(dir, xid.New().String(), buffer, logger)
}

// OpenSession is Open with an explicit session id. Reopening an existing
// session appends to its files without repeating the headers.
func OpenSession(dir, session string, buffer int64, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}

	t := &Trail{
		session:    session,
		tradesPath: filepath.Join(dir, session+"_trades.csv"),
		bookPath:   filepath.Join(dir, session+"_book.csv"),
		logger:     logger.With("component", "audit", "session", session),
	}

	trades, err := openCSV(t.tradesPath, TradesHeader)
	if err != nil {
		return nil, err
	}
	book, err := openCSV(t.bookPath, BookHeader)
	if err != nil {
		_ = trades.close()
		return nil, err
	}

	t.writer = &csvWriter{trades: trades, book: book, logger: t.logger}
	t.ring = disruptor.NewRingBuffer[row](buffer, t.writer)
	t.writer.pending = t.ring.GetPendingEvents
	go t.ring.Run()

	return t, nil
}

func (t *Trail) Session() string    { return t.session }
func (t *Trail) TradesPath() string { return t.tradesPath }
func (t *Trail) BookPath() string   { return t.bookPath }

// Dropped returns the number of rows offered after Close.
func (t *Trail) Dropped() uint64 {
	return t.dropped.Load()
}

// RecordTrades enqueues one row per trade, stamped with the current time.
func (t *Trail) RecordTrades(trades ...match.Trade) {
	ts := time.Now().UnixNano()
	for i := range trades {
		t.publish(row{kind: rowTrade, tsNs: ts, trade: trades[i]})
	}
}

// RecordBook enqueues a top-of-book sample.
func (t *Trail) RecordBook(top match.TopOfBook) {
	t.publish(row{kind: rowBook, tsNs: time.Now().UnixNano(), top: top})
}

func (t *Trail) publish(r row) {
	if !t.ring.Publish(r) {
		t.dropped.Add(1)
	}
}

// Close stops accepting rows, waits for queued rows to be written and closes the files.
func (t *Trail) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if err := t.ring.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain audit rows: %w", err)
	}

	err := errors.Join(t.writer.trades.close(), t.writer.book.close())
	if n := t.dropped.Load(); n > 0 {
		t.logger.Warn("audit rows dropped after close", "count", n)
	}
	return err
}

// csvWriter is the ring's only consumer.
type csvWriter struct {
	trades  *csvFile
	book    *csvFile
	pending func() int64
	logger  *slog.Logger
}

func (w *csvWriter) OnEvent(r *row) {
	var err error
	switch r.kind {
	case rowTrade:
		err = w.trades.w.Write(tradeRecord(r.tsNs, &r.trade))
	case rowBook:
		err = w.book.w.Write(bookRecord(r.tsNs, &r.top))
	}
	if err != nil {
		w.logger.Error("audit write failed", "error", err)
	}

	// Flush once the ring is drained so files stay current without a flush per row.
	if w.pending() <= 1 {
		w.trades.w.Flush()
		w.book.w.Flush()
	}
}

func tradeRecord(ts int64, tr *match.Trade) []string {
	return []string{
		strconv.FormatInt(ts, 10),
		strconv.FormatUint(tr.ID, 10),
		strconv.FormatUint(tr.MakerID, 10),
		strconv.FormatUint(tr.TakerID, 10),
		strconv.FormatInt(tr.Qty, 10),
		tr.Price.String(),
		tr.MakerClient,
		tr.TakerClient,
	}
}

func bookRecord(ts int64, top *match.TopOfBook) []string {
	rec := []string{strconv.FormatInt(ts, 10), "0", "", "", "0", "", ""}
	if top.HasBid {
		rec[1], rec[2], rec[3] = "1", top.BidPrice.String(), strconv.FormatInt(top.BidQty, 10)
	}
	if top.HasAsk {
		rec[4], rec[5], rec[6] = "1", top.AskPrice.String(), strconv.FormatInt(top.AskQty, 10)
	}
	return rec
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// openCSV opens path for appending and writes header only if the file is empty.
func openCSV(path string, header []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.w.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
		cf.w.Flush()
		if err := cf.w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return cf, nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}
