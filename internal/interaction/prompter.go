// Package interaction asks a curator to settle contested references.
package interaction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/pkg/domain"
)

// Opener shows a locator to the curator. Failures are not fatal.
type Opener interface {
	Open(ctx context.Context, locator string) error
}

// Prompter asks on a line oriented terminal.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	opener Opener
	logger zerolog.Logger
}

// Option configures a Prompter.
type Option func(*Prompter)

// WithOpener opens every locator of an escalation before asking.
func WithOpener(o Opener) Option { return func(p *Prompter) { p.opener = o } }

// WithLogger sets the logger for opener failures.
func WithLogger(l zerolog.Logger) Option { return func(p *Prompter) { p.logger = l } }

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer, opts ...Option) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask presents the escalation and maps the answer onto a verdict. Answers
// other than 1, 2 or 3 yield an invalid verdict so the caller asks again.
func (p *Prompter) Ask(ctx context.Context, e domain.Escalation) (domain.Verdict, error) {
	if p.opener != nil {
		for _, loc := range e.Locations {
			if err := p.opener.Open(ctx, loc); err != nil {
				p.logger.Debug().Err(err).Str("locator", loc).Msg("viewer failed")
			}
		}
	}
	fmt.Fprintf(p.out, "To which substance shall %s be assigned?\n", e.URN)
	fmt.Fprintf(p.out, "  1) new entry:      %s\n", e.NewSource)
	fmt.Fprintf(p.out, "  2) existing entry: %s\n", strings.Join(e.ExistingSources, "\n                     "))
	fmt.Fprintln(p.out, "  3) none of them")
	fmt.Fprint(p.out, "> ")

	line, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	switch strings.TrimSpace(line) {
	case "1":
		return domain.VerdictAssignToNew, nil
	case "2":
		return domain.VerdictAssignToOld, nil
	case "3":
		return domain.VerdictDeassign, nil
	default:
		return domain.Verdict(strings.TrimSpace(line)), nil
	}
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "read answer")
	}
	return line, nil
}
