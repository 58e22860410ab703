package main

import (
	"strings"
	"testing"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/0x5487/tradesim/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellScript(t *testing.T) {
	d := server.NewDispatcher(match.NewMatchingEngine(), tradelog.New(10))

	in := strings.NewReader(strings.Join([]string{
		"NEW LIMIT SELL 50 @ 10.20 CLIENT s1",
		"",
		"new market buy 20 client b1",
		"BOOK",
		"QUIT",
		"BOOK",
	}, "\n"))
	var out strings.Builder

	require.NoError(t, shell(d, in, &out, false))
	assert.Equal(t, strings.Join([]string{
		"OK 1 0 trades",
		"OK 2 1 trades",
		"BOOK BID none | ASK 30@10.20",
		"BYE",
	}, "\n")+"\n", out.String())
}

func TestShellInteractive(t *testing.T) {
	d := server.NewDispatcher(match.NewMatchingEngine(), tradelog.New(10), server.WithVerboseHelp())

	var out strings.Builder
	require.NoError(t, shell(d, strings.NewReader("TRADES\n"), &out, true))

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "tradesim shell\nCommands:\n"))
	assert.Contains(t, s, "> TRADES 0\n> ")
}

func TestShellLineTooLong(t *testing.T) {
	d := server.NewDispatcher(match.NewMatchingEngine(), tradelog.New(10))

	var out strings.Builder
	err := shell(d, strings.NewReader(strings.Repeat("x", 5000)), &out, false)
	assert.Error(t, err)

	out.Reset()
	in := strings.NewReader(strings.Repeat("x", protocol.MaxLineLength) + "\n" + strings.Repeat("x", protocol.MaxLineLength+1) + "\nBOOK\n")
	err = shell(d, in, &out, false)
	assert.ErrorIs(t, err, protocol.ErrLineTooLong)
	assert.Equal(t, `ERROR unknown command: "`+strings.Repeat("x", 32)+`..."`+"\n", out.String())
}
