// Package extdut runs a predictor implementation in a child process and
// talks to it over a line protocol on stdin/stdout:
//
//	request                       response
//	pv ppc tv tt tm th tpc        <taken 0|1> <history hex>
//	reset                         ok
//	state                         state <ghr hex> <128 counter digits>
//	quit                          (process exits)
//
// Any request may instead be answered with "error <message>".
package extdut

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/oisee/gshare-model/pkg/bench"
	"github.com/oisee/gshare-model/pkg/counter"
	"github.com/oisee/gshare-model/pkg/pht"
	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Options configures the child process.
type Options struct {
	Path  string
	Args  []string
	Env   []string // nil inherits the parent environment
	State bool     // the child answers "state" requests
}

// Process is a running external device. Requests are serialized.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	in    *bufio.Writer
	out   *bufio.Reader
	state bool
	mu    sync.Mutex
}

var _ bench.Device = (*Process)(nil)
var _ bench.StateReader = (*Process)(nil)

// Start launches the child process.
func Start(opts Options) (*Process, error) {
	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Env = opts.Env
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("extdut: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("extdut: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("extdut: start %s: %w", opts.Path, err)
	}
	return &Process{
		cmd:   cmd,
		stdin: stdin,
		in:    bufio.NewWriter(stdin),
		out:   bufio.NewReader(stdout),
		state: opts.State,
	}, nil
}

func (p *Process) roundTrip(req string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.in.WriteString(req + "\n"); err != nil {
		return "", fmt.Errorf("extdut: write: %w", err)
	}
	if err := p.in.Flush(); err != nil {
		return "", fmt.Errorf("extdut: write: %w", err)
	}
	line, err := p.out.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("extdut: read reply to %q: %w", req, err)
	}
	line = strings.TrimSpace(line)
	if msg, ok := strings.CutPrefix(line, "error "); ok {
		return "", fmt.Errorf("extdut: device error on %q: %s", req, msg)
	}
	return line, nil
}

// Reset asserts reset on the device.
func (p *Process) Reset() error {
	line, err := p.roundTrip("reset")
	if err != nil {
		return err
	}
	if line != "ok" {
		return fmt.Errorf("extdut: unexpected reset reply %q", line)
	}
	return nil
}

// Step sends one cycle and parses the prediction outputs.
func (p *Process) Step(c stimulus.Cycle) (predictor.Response, error) {
	if c.Reset {
		return predictor.Response{}, p.Reset()
	}
	c.Label = ""
	line, err := p.roundTrip(stimulus.FormatCycle(c))
	if err != nil {
		return predictor.Response{}, err
	}
	return ParseResponse(line)
}

// Snapshot asks the device for its PHT and GHR.
func (p *Process) Snapshot() (predictor.State, error) {
	if !p.state {
		return predictor.State{}, bench.ErrNoState
	}
	line, err := p.roundTrip("state")
	if err != nil {
		return predictor.State{}, err
	}
	return ParseState(line)
}

// Close asks the child to quit and waits for it.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString("quit\n")
	p.in.Flush()
	p.stdin.Close()
	return p.cmd.Wait()
}

// FormatResponse renders prediction outputs as a reply line.
func FormatResponse(r predictor.Response) string {
	t := 0
	if r.Taken {
		t = 1
	}
	return fmt.Sprintf("%d %02x", t, r.History)
}

// ParseResponse parses a "<taken> <history>" reply.
func ParseResponse(line string) (predictor.Response, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return predictor.Response{}, fmt.Errorf("extdut: bad response %q", line)
	}
	var r predictor.Response
	switch fields[0] {
	case "0":
	case "1":
		r.Taken = true
	default:
		return r, fmt.Errorf("extdut: bad taken flag %q", fields[0])
	}
	h, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return r, fmt.Errorf("extdut: bad history %q: %w", fields[1], err)
	}
	r.History = uint8(h)
	return r, nil
}

// FormatState renders a state reply: GHR in hex, then one digit per slot.
func FormatState(s predictor.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state %02x ", s.GHR)
	for _, c := range s.PHT {
		b.WriteByte('0' + byte(c&3))
	}
	return b.String()
}

// ParseState parses a state reply.
func ParseState(line string) (predictor.State, error) {
	var s predictor.State
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "state" {
		return s, fmt.Errorf("extdut: bad state reply %q", line)
	}
	ghr, err := strconv.ParseUint(fields[1], 16, 8)
	if err != nil {
		return s, fmt.Errorf("extdut: bad ghr %q: %w", fields[1], err)
	}
	s.GHR = uint8(ghr)
	if len(fields[2]) != pht.Size {
		return s, fmt.Errorf("extdut: state has %d counters, want %d", len(fields[2]), pht.Size)
	}
	for i := 0; i < pht.Size; i++ {
		d := fields[2][i]
		if d < '0' || d > '3' {
			return s, fmt.Errorf("extdut: bad counter %q at slot %d", d, i)
		}
		s.PHT[i] = counter.Counter(d - '0')
	}
	return s, nil
}
