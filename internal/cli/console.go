// Package cli is the interactive console of duelnet: picking a combatant,
// hosting or joining a battle, and the turn prompt with chat.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
)

// ErrInputClosed is returned when the player's input stream ends.
var ErrInputClosed = errors.New("input closed")

// Console serializes output from the prompt and the chat printer and reads
// player input on its own goroutine, so a pending read never blocks network
// driven output.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	lines chan string
}

// NewConsole starts reading lines from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:   out,
		lines: make(chan string),
	}
	go c.readLoop(in)
	return c
}

func (c *Console) readLoop(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		c.lines <- strings.TrimSpace(scanner.Text())
	}
}

// Lines delivers trimmed input lines; it is closed at end of input.
func (c *Console) Lines() <-chan string {
	return c.lines
}

// ReadLine prints prompt and waits for the next line.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		c.Printf("%s", prompt)
	}
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", ErrInputClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Println(args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Table renders rows under header.
func (c *Console) Table(header []string, rows [][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.AppendBulk(rows)
	tw.Render()
}
