// Package client speaks the line protocol to a tradesim server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/protocol"
)

var ErrLineTooLong = errors.New("response line too long")

// Client is one TCP session. It is safe for concurrent use, but responses are
// read in order, so concurrent Roundtrip calls are serialized.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	mu      sync.Mutex
	timeout time.Duration

	// Greeting is the first line the server sent.
	Greeting string
}

type Option func(*Client)

// WithTimeout bounds every Send and ReadLine. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to addr and consumes the greeting line.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, protocol.MaxLineLength+2),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	greeting, err := c.ReadLine()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	c.Greeting = greeting
	return c, nil
}

// Send writes one command line.
func (c *Client) Send(line string) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// ReadLine reads one response line without its terminator.
func (c *Client) ReadLine() (string, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return "", err
		}
	}
	line, err := c.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		return "", err
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) > protocol.MaxLineLength {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

// Roundtrip sends line and returns the single response line.
func (c *Client) Roundtrip(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Send(line); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// Trades sends TRADES and returns the TRADE lines that follow its header.
func (c *Client) Trades() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Send("TRADES"); err != nil {
		return nil, err
	}
	header, err := c.ReadLine()
	if err != nil {
		return nil, err
	}

	var n int
	if _, err := fmt.Sscanf(header, "TRADES %d", &n); err != nil {
		return nil, fmt.Errorf("%w: %q", protocol.ErrMalformedResponse, header)
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := c.ReadLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Book sends BOOK and parses the response.
func (c *Client) Book() (match.TopOfBook, error) {
	line, err := c.Roundtrip("BOOK")
	if err != nil {
		return match.TopOfBook{}, err
	}
	return protocol.ParseBook(line)
}

// Quit sends QUIT, waits for BYE and closes the connection.
func (c *Client) Quit() error {
	line, err := c.Roundtrip("QUIT")
	closeErr := c.Close()
	if err != nil {
		return err
	}
	if line != protocol.Bye {
		return fmt.Errorf("%w: %q", protocol.ErrMalformedResponse, line)
	}
	return closeErr
}

func (c *Client) Close() error {
	return c.conn.Close()
}
