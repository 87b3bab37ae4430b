package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/loykin/drowsy"
)

func newSessionID() string { return uuid.NewString() }

func closeSink(s drowsy.HistorySink) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
