package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"
)

// WriteJSON writes v as indented JSON, colorized when w is a terminal.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = pretty.Pretty(data)
	if isTerminal(w) {
		data = pretty.Color(data, nil)
	}
	_, err = w.Write(data)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// OutputFormat validates the --format flag value.
func OutputFormat(format string) (string, error) {
	switch format {
	case "json", "table":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use json or table)", format)
	}
}
