package engine

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"strconv"
	"strings"
)

// FatalMarker in a progress line means the pipeline could not find its source.
const FatalMarker = "No such file"

// maxLineLength bounds a single progress line; excess bytes are dropped.
const maxLineLength = 4096

// EventKind classifies a progress line.
type EventKind int

const (
	// EventIgnorable is a blank, noisy or malformed line.
	EventIgnorable EventKind = iota
	// EventPercent carries a completion percentage in [0, 100].
	EventPercent
	// EventFatal reports a missing source.
	EventFatal
)

// Event is one decoded progress line.
type Event struct {
	Kind    EventKind
	Percent int
	// Line is the trimmed text the event was decoded from.
	Line string
}

// Classify decodes a single line from the pipeline's progress channel.
// Anything that is neither a fatal line nor an integer in [0, 100] is
// ignorable.
func Classify(line string) Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{Kind: EventIgnorable}
	}
	if strings.Contains(trimmed, FatalMarker) {
		return Event{Kind: EventFatal, Line: trimmed}
	}
	n, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil || n > 100 {
		return Event{Kind: EventIgnorable, Line: trimmed}
	}
	return Event{Kind: EventPercent, Percent: int(n), Line: trimmed}
}

// Decoder splits an unbuffered progress stream into events.
// Lines end at "\n", "\r" or "\r\n". A bare "\r" emits immediately, since
// progress tools redraw with it and may not write again for a while; a "\n"
// directly after it is swallowed.
type Decoder struct {
	// Classify turns a line into an event. Defaults to the package Classify.
	Classify func(line string) Event

	r       *bufio.Reader
	line    []byte
	afterCR bool
	err     error
}

// NewDecoder reads progress from r one byte at a time.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		Classify: Classify,
		r:        bufio.NewReader(r),
	}
}

// Next returns the next event. At the end of the stream a partial trailing
// line is flushed as a final event, after which Next returns io.EOF.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			d.err = err
			if len(d.line) > 0 {
				return d.emit(), nil
			}
			return Event{}, err
		}

		if d.afterCR {
			d.afterCR = false
			if b == '\n' {
				continue
			}
		}

		switch b {
		case '\r':
			d.afterCR = true
			return d.emit(), nil
		case '\n':
			return d.emit(), nil
		default:
			if len(d.line) < maxLineLength {
				d.line = append(d.line, b)
			}
		}
	}
}

// Events yields the remaining events lazily. Each call resumes where the
// previous one stopped; the stream cannot be rewound.
func (d *Decoder) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := d.Next()
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Err returns the read error that ended the stream, or nil at a clean end.
func (d *Decoder) Err() error {
	if errors.Is(d.err, io.EOF) {
		return nil
	}
	return d.err
}

func (d *Decoder) emit() Event {
	classify := d.Classify
	if classify == nil {
		classify = Classify
	}
	ev := classify(string(d.line))
	d.line = d.line[:0]
	return ev
}
