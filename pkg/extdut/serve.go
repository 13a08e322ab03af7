package extdut

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Serve answers protocol requests from r on w using p until "quit" or EOF.
// Malformed requests get an error reply and do not stop the loop.
func Serve(r io.Reader, w io.Writer, p *predictor.Predictor) error {
	sc := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		var reply string
		switch line {
		case "":
			continue
		case "quit":
			return bw.Flush()
		case "state":
			reply = FormatState(p.Snapshot())
		default:
			c, ok, err := stimulus.ParseCycle(line)
			switch {
			case err != nil:
				reply = "error " + err.Error()
			case !ok:
				continue
			case c.Reset:
				p.Reset()
				reply = "ok"
			default:
				reply = FormatResponse(p.Step(c.Predict(), c.Train()))
			}
		}
		if _, err := fmt.Fprintln(bw, reply); err != nil {
			return fmt.Errorf("extdut: serve: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("extdut: serve: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("extdut: serve: %w", err)
	}
	return bw.Flush()
}
