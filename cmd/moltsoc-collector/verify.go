package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/securityjoes/MoltSoc/internal/event"
	"github.com/spf13/cobra"
)

// maxRecordSize bounds one NDJSON line read by verify.
const maxRecordSize = 16 << 20

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <events.jsonl>",
		Short: "Validate an NDJSON event log against the event schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer f.Close()

			res, err := verifyLog(f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records checked, %d invalid\n", res.checked, res.invalid)
			if res.invalid > 0 {
				return errInvalidRecords
			}
			return nil
		},
	}
}

type verifyResult struct {
	checked int
	invalid int
}

// verifyLog validates every non-empty line of r, reporting failures to
// problems with their line number.
func verifyLog(r io.Reader, problems io.Writer) (verifyResult, error) {
	var res verifyResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxRecordSize)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		res.checked++
		if err := event.Validate(line); err != nil {
			res.invalid++
			fmt.Fprintf(problems, "line %d: %v\n", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read event log: %w", err)
	}
	return res, nil
}
