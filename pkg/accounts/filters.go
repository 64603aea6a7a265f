package accounts

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Filter narrows a bulk record query server side. Two shapes exist: an
// exact byte match at a fixed offset, and a total-size match used to select
// one record layout among several sharing a prefix.
type Filter struct {
	// Offset is the byte offset of the comparison, for memcmp filters.
	Offset int

	// Bytes is the expected byte sequence at Offset, for memcmp filters.
	Bytes []byte

	// DataSize selects records of exactly this serialized size when
	// non-zero; Offset and Bytes are ignored.
	DataSize int
}

// Memcmp builds an exact-match filter at a byte offset.
func Memcmp(offset int, b []byte) Filter {
	return Filter{Offset: offset, Bytes: b}
}

// BySize builds a filter selecting records of an exact serialized size.
// Useful for fetching all records of one type when the layouts differ
// in length.
func BySize(t RecordType) (Filter, error) {
	size, err := Size(t)
	if err != nil {
		return Filter{}, err
	}
	return Filter{DataSize: size}, nil
}

// ByOwner matches the 32-byte owner key directly after the discriminator.
// Applies to record layouts whose first field is the owner.
func ByOwner(owner []byte) Filter {
	return Memcmp(discriminatorLen, owner)
}

// String renders the filter in a stable form.
func (f Filter) String() string {
	if f.DataSize > 0 {
		return fmt.Sprintf("size=%d", f.DataSize)
	}
	return fmt.Sprintf("memcmp=%d:%s", f.Offset, hex.EncodeToString(f.Bytes))
}

// FilterKey renders a filter set as a deterministic cache key fragment.
// Order of the input does not affect the result.
func FilterKey(filters []Filter) string {
	if len(filters) == 0 {
		return "all"
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
