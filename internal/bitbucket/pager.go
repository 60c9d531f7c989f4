package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

const maxPages = 1000

// ErrCursorRevisited indicates the server handed back a page URL that was already fetched.
var ErrCursorRevisited = errors.New("pagination cursor revisited")

type pageEnvelope struct {
	Values json.RawMessage `json:"values"`
	Next   json.RawMessage `json:"next"`
}

// Pager follows "next" links across a paginated collection. It is consumed once
// with All; a second call yields nothing.
type Pager[T any] struct {
	client  *Client
	what    string
	next    string
	decode  func(json.RawMessage) (T, error)
	visited map[string]struct{}
	pages   int
	err     error
}

func newPager[T any](c *Client, what, start string, decode func(json.RawMessage) (T, error)) *Pager[T] {
	return &Pager[T]{
		client:  c,
		what:    what,
		next:    start,
		decode:  decode,
		visited: make(map[string]struct{}),
	}
}

func failedPager[T any](c *Client, what string, err error) *Pager[T] {
	return &Pager[T]{
		client:  c,
		what:    what,
		visited: make(map[string]struct{}),
		err:     fmt.Errorf("list %s: %w", what, err),
	}
}

// All yields every item in server page order. A non-nil error belongs to that
// single item (a *DecodeError); the sequence continues after it. Page-level
// failures end the sequence and are reported by Err.
func (p *Pager[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.next != "" {
			current := p.next
			p.next = ""

			if err := ctx.Err(); err != nil {
				p.err = fmt.Errorf("list %s: %w", p.what, err)
				return
			}
			if p.pages >= maxPages {
				p.err = fmt.Errorf("list %s: pagination exceeded max page limit %d", p.what, maxPages)
				return
			}
			if _, seen := p.visited[current]; seen {
				p.err = fmt.Errorf("list %s: %w: %q", p.what, ErrCursorRevisited, current)
				return
			}
			p.visited[current] = struct{}{}

			body, err := p.client.getJSON(ctx, current)
			if err != nil {
				p.err = fmt.Errorf("list %s page %d: %w", p.what, p.pages+1, err)
				return
			}
			p.pages++

			var page pageEnvelope
			if err := json.Unmarshal(body, &page); err != nil {
				p.err = fmt.Errorf("list %s page %d: %w", p.what, p.pages, &DecodeError{Entity: "page", Payload: body, Err: err})
				return
			}

			items, err := splitValues(page.Values)
			if err != nil {
				p.client.logger.Warn("page has no usable values", "what", p.what, "page", p.pages, "error", err, "payload", string(body))
			}

			next, cursorErr := parseCursor(page.Next)
			p.next = next
			for _, raw := range items {
				item, decodeErr := p.decode(raw)
				if !yield(item, decodeErr) {
					p.next = ""
					return
				}
			}
			if cursorErr != nil {
				p.err = fmt.Errorf("list %s page %d: %w", p.what, p.pages, &DecodeError{Entity: "page cursor", Payload: page.Next, Err: cursorErr})
				return
			}
		}
	}
}

// Err reports the failure that ended pagination early, if any.
func (p *Pager[T]) Err() error {
	return p.err
}

// Pages reports how many pages were fetched.
func (p *Pager[T]) Pages() int {
	return p.pages
}

// parseCursor reads the "next" link. Absent or null means the last page.
func parseCursor(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var next string
	if err := json.Unmarshal(trimmed, &next); err != nil {
		return "", fmt.Errorf("next field is not a string: %w", err)
	}
	return next, nil
}

func splitValues(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("values field absent")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("values field is not an array: %w", err)
	}
	return items, nil
}
