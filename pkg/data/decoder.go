package data

import (
	"unicode/utf8"

	"twap_oracle/pkg/stream"
)

// MinEventFields is the number of data fields a spot entry event carries.
const MinEventFields = 6

// FromEvent decodes a spot entry event observed in block. It reports false
// for events without a sender or with fewer than MinEventFields data fields.
//
// Data layout: timestamp, source, publisher, price, pair_id, volume.
func FromEvent(ev stream.Event, block uint64) (*PriceRecord, bool) {
	if ev.FromAddress == nil || len(ev.Data) < MinEventFields {
		return nil, false
	}

	return &PriceRecord{
		Timestamp:   ev.Data[0].Decimal(),
		Source:      asciiFromFelt(ev.Data[1]),
		Publisher:   asciiFromFelt(ev.Data[2]),
		Price:       ev.Data[3].Decimal(),
		PairID:      asciiFromFelt(ev.Data[4]),
		Volume:      ev.Data[5].Decimal(),
		BlockNumber: block,
	}, true
}

// asciiFromFelt keeps the ASCII bytes of the felt's big-endian form. Non-text
// input yields "".
func asciiFromFelt(f stream.FieldElement) string {
	raw := f.Bytes()
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b < utf8.RuneSelf {
			out = append(out, b)
		}
	}
	if !utf8.Valid(out) {
		return ""
	}
	return string(out)
}
