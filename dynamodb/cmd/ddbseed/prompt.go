package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acksell/ddbseed/export"
	"golang.org/x/term"
)

var errNotInteractive = errors.New("no terminal to prompt on; pass the value as a flag")

// interactive reports whether stdin and stdout are both terminals.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// prompter asks until parse accepts an answer.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) ask(question, retry string, parse func(string) (string, bool)) (string, error) {
	fmt.Fprint(p.out, question)
	for {
		line, err := p.in.ReadString('\n')
		if v, ok := parse(strings.TrimSpace(line)); ok {
			return v, nil
		}
		if err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
		fmt.Fprint(p.out, retry)
	}
}

func (p *prompter) initial() (string, error) {
	return p.ask("Initial to filter names by (A-Z): ", "Enter a single letter A-Z: ", func(s string) (string, bool) {
		v := export.NormalizeInitial(s)
		return v, export.ValidInitial(v)
	})
}

func (p *prompter) order() (export.Order, error) {
	fmt.Fprintln(p.out, "Sort order:")
	fmt.Fprintln(p.out, "  [1] ascending (A to Z)")
	fmt.Fprintln(p.out, "  [2] descending (Z to A)")
	v, err := p.ask("Enter 1 or 2: ", "Enter 1 or 2: ", func(s string) (string, bool) {
		if s != "1" && s != "2" {
			return "", false
		}
		o, err := export.ParseOrder(s)
		return string(o), err == nil
	})
	return export.Order(v), err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
