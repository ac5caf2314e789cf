package pairing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// Console is the interactive terminal the flow talks to.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	lines chan lineResult
	once  sync.Once
}

// NewConsole creates a Console reading lines from in and printing to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out, lines: make(chan lineResult, 1)}
}

// Println prints a line.
func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.out, a...)
}

// Printf prints a formatted line.
func (c *Console) Printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", a...)
}

// readLines feeds c.lines until in fails. Reads from a terminal cannot be interrupted,
// so a pending read stays behind when ReadLine gives up on a cancelled context.
func (c *Console) readLines() {
	defer close(c.lines)
	for {
		line, err := c.in.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			c.lines <- lineResult{err: err}
			return
		}
		c.lines <- lineResult{line: strings.TrimSpace(line)}
		if err != nil {
			return
		}
	}
}

// ReadLine blocks until a line was entered or ctx is done and returns the line without
// surrounding whitespace. A final line without newline is returned before io.EOF.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.once.Do(func() { go c.readLines() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}

// WaitForEnter blocks until the user pressed enter or ctx is done.
func (c *Console) WaitForEnter(ctx context.Context) error {
	c.Println("Press enter to continue")
	_, err := c.ReadLine(ctx)
	return err
}
