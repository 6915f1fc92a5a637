package llm

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE or NDJSON line
const maxLineSize = 1 << 20

// SSEEvent is one dispatched server-sent event
type SSEEvent struct {
	Event string
	Data  string
}

// ReadSSE parses a text/event-stream body and calls fn for every event.
// Reading stops when fn returns stop=true, fn fails, or the body ends.
func ReadSSE(r io.Reader, fn func(ev SSEEvent) (stop bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var event string
	var data []string

	dispatch := func() (bool, error) {
		if len(data) == 0 {
			event = ""
			return false, nil
		}
		ev := SSEEvent{Event: event, Data: strings.Join(data, "\n")}
		event, data = "", data[:0]
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			stop, err := dispatch()
			if err != nil || stop {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	_, err := dispatch()
	return err
}

// ReadLines calls fn for every non-empty line of a newline-delimited body
func ReadLines(r io.Reader, fn func(line []byte) (stop bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		stop, err := fn(line)
		if err != nil || stop {
			return err
		}
	}
	return scanner.Err()
}
