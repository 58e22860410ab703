package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/metrics"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/0x5487/tradesim/protocol"
)

// Recorder receives executed trades and sampled tops of book, e.g. the audit trail.
type Recorder interface {
	RecordTrades(trades ...match.Trade)
	RecordBook(top match.TopOfBook)
}

// Response is what one request line produces. Quit asks the caller to end the session.
type Response struct {
	Lines []string
	Quit  bool
}

// Dispatcher executes protocol commands against one engine. It holds no
// per-session state and is safe for concurrent use.
type Dispatcher struct {
	engine      *match.MatchingEngine
	history     *tradelog.Log
	recorder    Recorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
	verboseHelp bool
}

type DispatcherOption func(*Dispatcher)

func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithVerboseHelp answers HELP with one usage line per command instead of a summary.
func WithVerboseHelp() DispatcherOption {
	return func(d *Dispatcher) { d.verboseHelp = true }
}

func NewDispatcher(engine *match.MatchingEngine, history *tradelog.Log, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		history: history,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle parses and executes one request line. Blank lines produce no output.
func (d *Dispatcher) Handle(line string) Response {
	start := time.Now()

	cmd, err := protocol.Parse(line)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyLine) {
			return Response{}
		}
		d.Reject(err)
		return reply(protocol.FormatError(err))
	}

	resp := d.execute(cmd)
	if d.metrics != nil {
		d.metrics.ObserveCommand(cmd.Type.String(), start)
	}
	if cmd.Type.IsTrading() && d.logger.Enabled(context.Background(), slog.LevelDebug) {
		d.logger.Debug("book after command", "command", cmd.Type.String(), "top", protocol.FormatBook(d.engine.Top()))
	}
	return resp
}

func (d *Dispatcher) execute(cmd *protocol.Command) Response {
	switch cmd.Type {
	case protocol.CmdHelp:
		if d.verboseHelp {
			return Response{Lines: append([]string{"Commands:"}, protocol.Usage...)}
		}
		return reply(protocol.HelpLine)

	case protocol.CmdQuit:
		return Response{Lines: []string{protocol.Bye}, Quit: true}

	case protocol.CmdBook:
		return reply(protocol.FormatBook(d.Book()))

	case protocol.CmdDepth:
		depth, err := d.engine.Depth(cmd.Levels)
		if err != nil {
			d.Reject(err)
			return reply(protocol.FormatError(err))
		}
		return reply(protocol.FormatDepth(depth))

	case protocol.CmdTrades:
		return Response{Lines: protocol.FormatTrades(d.history.Recent(0))}

	case protocol.CmdNewLimit:
		return d.submit(protocol.OrderTypeLimit, cmd)

	case protocol.CmdNewMarket:
		return d.submit(protocol.OrderTypeMarket, cmd)

	case protocol.CmdCancel:
		return reply(protocol.FormatCancel(d.Cancel(cmd.OrderID)))
	}

	err := &protocol.ParseError{Err: protocol.ErrUnknownCommand}
	d.Reject(err)
	return reply(protocol.FormatError(err))
}

func (d *Dispatcher) submit(orderType protocol.OrderType, cmd *protocol.Command) Response {
	exec, err := d.Submit(orderType, cmd.Client, cmd.Side, cmd.Qty, cmd.Price)
	if err != nil {
		return reply(protocol.FormatError(err))
	}
	return reply(protocol.FormatAck(exec))
}

// Submit places an order on the engine and feeds its trades to the history,
// the recorder and the metrics. Price is ignored for market orders. Errors
// are counted as rejects before they are returned.
func (d *Dispatcher) Submit(orderType protocol.OrderType, client string, side match.Side, qty match.Qty, price match.Price) (*match.Execution, error) {
	var (
		exec *match.Execution
		err  error
	)
	switch orderType {
	case protocol.OrderTypeLimit:
		exec, err = d.engine.SubmitLimit(client, side, qty, price)
	case protocol.OrderTypeMarket:
		exec, err = d.engine.SubmitMarket(client, side, qty)
	default:
		err = fmt.Errorf("%w: order type must be limit or market", match.ErrInvalidParam)
	}
	if err != nil {
		d.Reject(err)
		return nil, err
	}

	if len(exec.Trades) > 0 {
		d.history.Add(exec.Trades...)
		if d.recorder != nil {
			d.recorder.RecordTrades(exec.Trades...)
		}
	}
	if d.metrics != nil {
		d.metrics.OrderAccepted(string(orderType), side, exec.Trades)
	}

	d.logger.Debug("order accepted",
		"order_id", exec.OrderID,
		"client", client,
		"type", orderType,
		"side", side.String(),
		"qty", qty,
		"trades", len(exec.Trades),
		"rested", exec.Rested)
	return exec, nil
}

// Cancel removes a resting order and reports whether it was found.
func (d *Dispatcher) Cancel(id match.OrderID) bool {
	ok := d.engine.Cancel(id)
	if d.metrics != nil {
		d.metrics.Cancelled(ok)
	}
	d.logger.Debug("cancel", "order_id", id, "cancelled", ok)
	return ok
}

// Book returns the top of book and samples it to the recorder.
func (d *Dispatcher) Book() match.TopOfBook {
	top := d.engine.Top()
	if d.recorder != nil {
		d.recorder.RecordBook(top)
	}
	return top
}

// Reject counts a rejected request under the reason derived from err.
func (d *Dispatcher) Reject(err error) {
	reason := protocol.RejectReasonOf(err)
	if d.metrics != nil {
		d.metrics.Rejected(string(reason))
	}
	d.logger.Debug("request rejected", "reason", reason, "error", err)
}

// Engine returns the engine commands are executed against.
func (d *Dispatcher) Engine() *match.MatchingEngine { return d.engine }

// History returns the recent trade log.
func (d *Dispatcher) History() *tradelog.Log { return d.history }

func reply(line string) Response {
	return Response{Lines: []string{line}}
}
