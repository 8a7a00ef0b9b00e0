package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rshade/healthbridge/internal/healthstore"
)

// PromptResult is the outcome of a yes/no question.
type PromptResult struct {
	Accepted bool
	// Cancelled means the answer could not be read at all.
	Cancelled bool
}

// ConfirmGrant asks whether healthbridge may read the given record types.
// Nothing is written or read unless interactive is true. An empty answer,
// EOF or anything other than y/yes declines.
func ConfirmGrant(w io.Writer, r io.Reader, types []healthstore.RecordType, interactive bool) PromptResult {
	if !interactive {
		return PromptResult{}
	}

	fmt.Fprintf(w, "\nhealthbridge will be able to read %d record type(s):\n", len(types))
	for _, t := range types {
		if unit := t.Unit(); unit != "" {
			fmt.Fprintf(w, "  - %s (%s)\n", t, unit)
		} else {
			fmt.Fprintf(w, "  - %s\n", t)
		}
	}
	fmt.Fprint(w, "? Grant read access? [y/N] ")

	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return PromptResult{Cancelled: true}
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{}
	}
}
