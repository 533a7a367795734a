package stream

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the apibara v1alpha2 node and starknet messages.
const (
	reqStreamID       protowire.Number = 1
	reqBatchSize      protowire.Number = 2
	reqStartingCursor protowire.Number = 3
	reqFinality       protowire.Number = 4
	reqFilter         protowire.Number = 5

	respStreamID   protowire.Number = 1
	respInvalidate protowire.Number = 2
	respData       protowire.Number = 3
	respHeartbeat  protowire.Number = 4

	cursorOrderKey  protowire.Number = 1
	cursorUniqueKey protowire.Number = 2

	invalidateCursor protowire.Number = 1

	dataCursor    protowire.Number = 1
	dataEndCursor protowire.Number = 2
	dataFinality  protowire.Number = 3
	dataBlocks    protowire.Number = 4

	filterHeader protowire.Number = 1
	filterEvents protowire.Number = 4

	headerFilterWeak protowire.Number = 1

	eventFilterFromAddress protowire.Number = 1
	eventFilterKeys        protowire.Number = 2

	feltLoLo protowire.Number = 1
	feltLoHi protowire.Number = 2
	feltHiLo protowire.Number = 3
	feltHiHi protowire.Number = 4

	blockHeader protowire.Number = 2
	blockEvents protowire.Number = 5

	headerBlockNumber protowire.Number = 3

	eventWithTxEvent protowire.Number = 3

	eventFromAddress protowire.Number = 1
	eventKeys        protowire.Number = 2
	eventData        protowire.Number = 3
	eventIndex       protowire.Number = 4
)

type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed64 uint64
	bytes   []byte
}

// decodeFields walks a serialized message, skipping unknown wire types.
func decodeFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("reading tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("reading field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func encodeFieldElement(f FieldElement) []byte {
	loLo, loHi, hiLo, hiHi := f.Limbs()
	var b []byte
	for _, w := range []struct {
		num protowire.Number
		v   uint64
	}{{feltLoLo, loLo}, {feltLoHi, loHi}, {feltHiLo, hiLo}, {feltHiHi, hiHi}} {
		b = protowire.AppendTag(b, w.num, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, w.v)
	}
	return b
}

func decodeFieldElement(b []byte) (FieldElement, error) {
	var loLo, loHi, hiLo, hiHi uint64
	err := decodeFields(b, func(f field) error {
		switch f.num {
		case feltLoLo:
			loLo = f.fixed64
		case feltLoHi:
			loHi = f.fixed64
		case feltHiLo:
			hiLo = f.fixed64
		case feltHiHi:
			hiHi = f.fixed64
		}
		return nil
	})
	if err != nil {
		return FieldElement{}, fmt.Errorf("decoding field element: %w", err)
	}
	return FeltFromLimbs(loLo, loHi, hiLo, hiHi), nil
}

func encodeCursor(c *Cursor) []byte {
	b := appendVarint(nil, cursorOrderKey, c.OrderKey)
	if len(c.UniqueKey) > 0 {
		b = protowire.AppendTag(b, cursorUniqueKey, protowire.BytesType)
		b = protowire.AppendBytes(b, c.UniqueKey)
	}
	return b
}

func decodeCursor(b []byte) (*Cursor, error) {
	c := &Cursor{}
	err := decodeFields(b, func(f field) error {
		switch f.num {
		case cursorOrderKey:
			c.OrderKey = f.varint
		case cursorUniqueKey:
			c.UniqueKey = append([]byte(nil), f.bytes...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding cursor: %w", err)
	}
	return c, nil
}

func encodeFilter(f Filter) []byte {
	var b []byte
	if f.WeakHeader {
		header := protowire.AppendTag(nil, headerFilterWeak, protowire.VarintType)
		header = protowire.AppendVarint(header, protowire.EncodeBool(true))
		b = appendMessage(b, filterHeader, header)
	}
	for _, ev := range f.Events {
		var eb []byte
		if ev.FromAddress != nil {
			eb = appendMessage(eb, eventFilterFromAddress, encodeFieldElement(*ev.FromAddress))
		}
		for _, k := range ev.Keys {
			eb = appendMessage(eb, eventFilterKeys, encodeFieldElement(k))
		}
		b = appendMessage(b, filterEvents, eb)
	}
	return b
}

func encodeRequest(cfg Configuration) []byte {
	b := appendVarint(nil, reqStreamID, cfg.StreamID)
	if cfg.BatchSize > 0 {
		b = appendVarint(b, reqBatchSize, cfg.BatchSize)
	}
	if cfg.StartingCursor != nil {
		b = appendMessage(b, reqStartingCursor, encodeCursor(cfg.StartingCursor))
	}
	b = appendVarint(b, reqFinality, uint64(cfg.Finality))
	b = protowire.AppendTag(b, reqFilter, protowire.BytesType)
	return protowire.AppendBytes(b, encodeFilter(cfg.Filter))
}

func decodeResponse(b []byte) (*Message, error) {
	msg := &Message{}
	err := decodeFields(b, func(f field) error {
		switch f.num {
		case respStreamID:
			msg.StreamID = f.varint
		case respInvalidate:
			var cur *Cursor
			err := decodeFields(f.bytes, func(inner field) error {
				if inner.num != invalidateCursor {
					return nil
				}
				c, err := decodeCursor(inner.bytes)
				cur = c
				return err
			})
			if err != nil {
				return fmt.Errorf("decoding invalidate: %w", err)
			}
			if cur == nil {
				cur = &Cursor{}
			}
			msg.Invalidate = cur
		case respData:
			data, err := decodeData(f.bytes)
			if err != nil {
				return err
			}
			msg.Data = data
		case respHeartbeat:
			msg.Heartbeat = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeData(b []byte) (*Data, error) {
	d := &Data{}
	err := decodeFields(b, func(f field) error {
		var err error
		switch f.num {
		case dataCursor:
			d.Cursor, err = decodeCursor(f.bytes)
		case dataEndCursor:
			d.EndCursor, err = decodeCursor(f.bytes)
		case dataFinality:
			d.Finality = DataFinality(f.varint)
		case dataBlocks:
			var blk Block
			blk, err = decodeBlock(f.bytes)
			if err == nil {
				d.Blocks = append(d.Blocks, blk)
			}
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return d, nil
}

func decodeBlock(b []byte) (Block, error) {
	var blk Block
	err := decodeFields(b, func(f field) error {
		switch f.num {
		case blockHeader:
			blk.HasHeader = true
			return decodeFields(f.bytes, func(h field) error {
				if h.num == headerBlockNumber {
					blk.Number = h.varint
				}
				return nil
			})
		case blockEvents:
			var (
				ev    Event
				found bool
			)
			err := decodeFields(f.bytes, func(wt field) error {
				if wt.num != eventWithTxEvent {
					return nil
				}
				var err error
				ev, err = decodeEvent(wt.bytes)
				found = err == nil
				return err
			})
			if err != nil {
				return err
			}
			if found {
				blk.Events = append(blk.Events, ev)
			}
		}
		return nil
	})
	if err != nil {
		return Block{}, fmt.Errorf("decoding block: %w", err)
	}
	return blk, nil
}

func decodeEvent(b []byte) (Event, error) {
	var ev Event
	err := decodeFields(b, func(f field) error {
		switch f.num {
		case eventFromAddress:
			fe, err := decodeFieldElement(f.bytes)
			if err != nil {
				return err
			}
			ev.FromAddress = &fe
		case eventKeys:
			fe, err := decodeFieldElement(f.bytes)
			if err != nil {
				return err
			}
			ev.Keys = append(ev.Keys, fe)
		case eventData:
			fe, err := decodeFieldElement(f.bytes)
			if err != nil {
				return err
			}
			ev.Data = append(ev.Data, fe)
		case eventIndex:
			ev.Index = f.varint
		}
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return ev, nil
}
