package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"torrentify/internal/naming"
)

// The path is passed through argv so it is never interpolated into code.
const guessitScript = `import json, sys
from guessit import guessit
print(json.dumps(dict(guessit(sys.argv[1])), default=str))`

// Guessit extracts release fields by calling the guessit Python package.
type Guessit struct {
	Python  string
	Timeout time.Duration
}

var _ naming.Extractor = (*Guessit)(nil)

func NewGuessit(python string, timeout time.Duration) *Guessit {
	if python == "" {
		python = "python3"
	}
	return &Guessit{Python: python, Timeout: timeout}
}

func (g *Guessit) Extract(ctx context.Context, path string) (naming.Fields, error) {
	out, err := runTool(ctx, g.Timeout, g.Python, "-c", guessitScript, path)
	if err != nil {
		return naming.Fields{}, err
	}
	return parseGuessit(out)
}

func parseGuessit(out []byte) (naming.Fields, error) {
	var f naming.Fields
	if err := json.Unmarshal(out, &f); err != nil {
		return naming.Fields{}, fmt.Errorf("decode guessit output: %w", err)
	}
	return f, nil
}
