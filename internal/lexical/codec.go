package lexical

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Posting is a single (passage_id, term_frequency) pair within a term's
// posting list.
type Posting struct {
	ID int64
	TF int
}

// EncodePostings packs postings, already sorted ascending by ID, into
// a varint-delta-encoded blob: each entry is (id_delta, tf) where
// id_delta is the gap from the previous entry's id (or the id itself
// for the first entry).
func EncodePostings(postings []Posting) ([]byte, error) {
	var buf []byte
	var prev int64
	for i, p := range postings {
		if i > 0 && p.ID <= prev {
			return nil, fmt.Errorf("postings must be strictly ascending by id")
		}
		delta := p.ID - prev
		prev = p.ID
		buf = protowire.AppendVarint(buf, uint64(delta))
		buf = protowire.AppendVarint(buf, uint64(p.TF))
	}
	return buf, nil
}

// DecodePostings unpacks a blob produced by EncodePostings back into
// an ascending-id posting list.
func DecodePostings(blob []byte) ([]Posting, error) {
	var postings []Posting
	var id int64
	for len(blob) > 0 {
		delta, n := protowire.ConsumeVarint(blob)
		if n < 0 {
			return nil, fmt.Errorf("malformed posting blob: bad id delta")
		}
		blob = blob[n:]

		tf, n := protowire.ConsumeVarint(blob)
		if n < 0 {
			return nil, fmt.Errorf("malformed posting blob: bad term frequency")
		}
		blob = blob[n:]

		id += int64(delta)
		postings = append(postings, Posting{ID: id, TF: int(tf)})
	}
	return postings, nil
}
