package channel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxEventSize = 1 << 20

// StatusError is recorded when the push endpoint answers with something other than 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// sseChannel is receive-only, the server learns nothing from the client over it.
type sseChannel struct {
	*base
	client *http.Client
	header http.Header
	url    string
}

func connectSSE(ctx context.Context, opts Options) *sseChannel {
	b, innerCtx := newBase(ctx, string(ModeSSE), opts.OnMessage)
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	c := &sseChannel{base: b, client: client, header: opts.Header, url: opts.URL}
	go c.run(innerCtx)
	return c
}

func (c *sseChannel) run(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.finish(fmt.Errorf("failed to create request: %w", err))
		return
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		c.finish(fmt.Errorf("failed to connect: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.finish(&StatusError{Code: resp.StatusCode})
		return
	}

	c.markOpen()
	c.finish(readEvents(resp.Body, c.deliver))
}

func (c *sseChannel) Send(string) error {
	if !c.IsReady() {
		return ErrChannelNotOpen
	}
	return ErrSendUnsupported
}

func (c *sseChannel) Close() error {
	c.markClosing()
	return nil
}

// readEvents parses an event stream until it ends. Only unnamed events and events named "message" are delivered;
// multi-line data fields are joined with newlines.
func readEvents(r io.Reader, deliver func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)
	scanner.Split(eventLines())

	var data []string
	hasData := false
	event := ""

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if hasData && (event == "" || event == "message") {
				deliver(strings.Join(data, "\n"))
			}
			data = data[:0]
			hasData = false
			event = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			event = value
		default:
			// id and retry are not used, there is no reconnect
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return ErrStreamEnded
}

// eventLines splits on CRLF, LF or a lone CR. A CR at the end of a read is a line end straight away, so the LF that
// may follow it in the next read is skipped.
func eventLines() bufio.SplitFunc {
	afterCR := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if afterCR && len(data) > 0 {
			afterCR = false
			if data[0] == '\n' {
				return 1, nil, nil
			}
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			afterCR = data[i] == '\r'
			return i + 1, data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
