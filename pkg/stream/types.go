// Package stream implements a client for the Apibara DNA v1alpha2 Starknet
// stream: filter construction, the StreamData call and block decoding.
package stream

import (
	"context"
	"errors"
)

// DataFinality mirrors apibara.node.v1alpha2.DataFinality.
type DataFinality int32

const (
	FinalityUnknown   DataFinality = 0
	FinalityPending   DataFinality = 1
	FinalityAccepted  DataFinality = 2
	FinalityFinalized DataFinality = 3
)

func (f DataFinality) String() string {
	switch f {
	case FinalityPending:
		return "pending"
	case FinalityAccepted:
		return "accepted"
	case FinalityFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ErrStreamClosed is returned by Next when the server ends the stream.
var ErrStreamClosed = errors.New("stream closed by server")

// Cursor identifies a position in the stream.
type Cursor struct {
	OrderKey  uint64
	UniqueKey []byte
}

// EventFilter matches events by emitter and keys.
type EventFilter struct {
	FromAddress *FieldElement
	Keys        []FieldElement
}

// Filter is the server-side Starknet filter.
type Filter struct {
	WeakHeader bool
	Events     []EventFilter
}

// AddEvent appends an event filter and returns the filter for chaining.
func (f *Filter) AddEvent(ev EventFilter) *Filter {
	f.Events = append(f.Events, ev)
	return f
}

// Configuration is sent as the first StreamData request.
type Configuration struct {
	StreamID       uint64
	BatchSize      uint64
	StartingCursor *Cursor
	Finality       DataFinality
	Filter         Filter
}

// WithStartingBlock positions the stream so the first delivered block is
// the given block number.
func (c Configuration) WithStartingBlock(block uint64) Configuration {
	if block == 0 {
		c.StartingCursor = nil
		return c
	}
	c.StartingCursor = &Cursor{OrderKey: block - 1}
	return c
}

// Event is a Starknet event as delivered by the stream.
type Event struct {
	FromAddress *FieldElement
	Keys        []FieldElement
	Data        []FieldElement
	Index       uint64
}

// Block carries the matching events of one block.
type Block struct {
	Number    uint64
	HasHeader bool
	Events    []Event
}

// Message is one StreamData response. Exactly one of Data, Invalidate or
// Heartbeat is set.
type Message struct {
	StreamID   uint64
	Data       *Data
	Invalidate *Cursor
	Heartbeat  bool
}

// Data is a batch of blocks.
type Data struct {
	Cursor    *Cursor
	EndCursor *Cursor
	Finality  DataFinality
	Blocks    []Block
}

// Stream is an open StreamData call.
type Stream interface {
	// Next blocks until the next message arrives.
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Client opens streams.
type Client interface {
	Open(ctx context.Context, cfg Configuration) (Stream, error)
	Close() error
}
