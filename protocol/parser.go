package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	match "github.com/0x5487/tradesim"
)

var (
	ErrEmptyLine         = errors.New("empty line")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUsage             = errors.New("wrong arguments")
	ErrInvalidNumber     = errors.New("invalid number")
	ErrInvalidSide       = errors.New("side must be BUY or SELL")
	ErrMalformedResponse = errors.New("malformed response")
)

const (
	usageNewLimit  = "NEW LIMIT BUY|SELL <qty> @ <price> CLIENT <name>"
	usageNewMarket = "NEW MARKET BUY|SELL <qty> CLIENT <name>"
	usageNew       = "NEW LIMIT|MARKET ..."
	usageCancel    = "CANCEL <order_id>"
	usageDepth     = "DEPTH [levels]"
)

// MaxLineLength is the longest request or response line accepted, excluding the newline.
const MaxLineLength = 4096

// maxQuotedToken bounds how much of an offending token an error echoes back.
const maxQuotedToken = 32

var ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineLength)

// NewLineScanner returns a scanner that yields request lines without their
// terminator and fails with ErrLineTooLong or bufio.ErrTooLong on a line
// longer than MaxLineLength.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Room for a full line plus "\r\n".
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength+2)
	scanner.Split(scanLine)
	return scanner
}

func scanLine(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if err == nil && len(token) > MaxLineLength {
		return 0, nil, ErrLineTooLong
	}
	return advance, token, err
}

// ParseError describes why a request line was rejected.
type ParseError struct {
	// Usage is the expected command shape, set for ErrUsage.
	Usage string
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Usage != "":
		return "usage: " + e.Usage
	case e.Token != "":
		return fmt.Sprintf("%s: %q", e.Err, shorten(e.Token))
	}
	return e.Err.Error()
}

func shorten(token string) string {
	if len(token) <= maxQuotedToken {
		return token
	}
	return token[:maxQuotedToken] + "..."
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func usageError(usage string) error {
	return &ParseError{Usage: usage, Err: ErrUsage}
}

// Parse turns one request line into a Command. Keywords are case-insensitive;
// client names keep their case.
func Parse(line string) (*Command, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil, &ParseError{Err: ErrEmptyLine}
	}

	switch keyword := strings.ToUpper(toks[0]); keyword {
	case "HELP":
		return simple(CmdHelp, toks, "HELP")
	case "QUIT", "EXIT":
		return simple(CmdQuit, toks, keyword)
	case "BOOK":
		return simple(CmdBook, toks, "BOOK")
	case "TRADES":
		return simple(CmdTrades, toks, "TRADES")
	case "DEPTH":
		return parseDepth(toks)
	case "CANCEL":
		return parseCancel(toks)
	case "NEW":
		return parseNew(toks)
	default:
		return nil, &ParseError{Token: toks[0], Err: ErrUnknownCommand}
	}
}

func simple(t CommandType, toks []string, usage string) (*Command, error) {
	if len(toks) != 1 {
		return nil, usageError(usage)
	}
	return &Command{Type: t}, nil
}

func parseDepth(toks []string) (*Command, error) {
	switch len(toks) {
	case 1:
		return &Command{Type: CmdDepth, Levels: DefaultDepthLevels}, nil
	case 2:
		n, err := strconv.ParseUint(toks[1], 10, 32)
		if err != nil || n == 0 {
			return nil, &ParseError{Token: toks[1], Err: ErrInvalidNumber}
		}
		return &Command{Type: CmdDepth, Levels: uint32(n)}, nil
	}
	return nil, usageError(usageDepth)
}

func parseCancel(toks []string) (*Command, error) {
	if len(toks) != 2 {
		return nil, usageError(usageCancel)
	}
	id, err := strconv.ParseUint(toks[1], 10, 64)
	if err != nil {
		return nil, &ParseError{Token: toks[1], Err: ErrInvalidNumber}
	}
	return &Command{Type: CmdCancel, OrderID: id}, nil
}

func parseNew(toks []string) (*Command, error) {
	if len(toks) < 2 {
		return nil, usageError(usageNew)
	}

	switch strings.ToUpper(toks[1]) {
	case "LIMIT":
		// NEW LIMIT <side> <qty> @ <price> CLIENT <name>
		if len(toks) != 8 || toks[4] != "@" || !strings.EqualFold(toks[6], "CLIENT") {
			return nil, usageError(usageNewLimit)
		}
		side, qty, err := parseSideQty(toks[2], toks[3])
		if err != nil {
			return nil, err
		}
		price, err := match.ParsePrice(toks[5])
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		return &Command{Type: CmdNewLimit, Side: side, Qty: qty, Price: price, Client: toks[7]}, nil

	case "MARKET":
		// NEW MARKET <side> <qty> CLIENT <name>
		if len(toks) != 6 || !strings.EqualFold(toks[4], "CLIENT") {
			return nil, usageError(usageNewMarket)
		}
		side, qty, err := parseSideQty(toks[2], toks[3])
		if err != nil {
			return nil, err
		}
		return &Command{Type: CmdNewMarket, Side: side, Qty: qty, Client: toks[5]}, nil
	}

	return nil, usageError(usageNew)
}

// parseSideQty checks syntax only; non-positive quantities are left for the engine to reject.
func parseSideQty(sideTok, qtyTok string) (match.Side, match.Qty, error) {
	side, err := match.ParseSide(sideTok)
	if err != nil {
		return 0, 0, &ParseError{Token: sideTok, Err: ErrInvalidSide}
	}
	qty, err := strconv.ParseInt(qtyTok, 10, 64)
	if err != nil {
		return 0, 0, &ParseError{Token: qtyTok, Err: ErrInvalidNumber}
	}
	return side, qty, nil
}
