package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// chunkSize is the largest single CREATE/APPEND/OPEN payload.
const chunkSize = 4 * 1024 * 1024

// recordSearchLimit bounds how far a segment boundary may move forward
// looking for the end of a record in delimited input.
const recordSearchLimit = 4 * 1024 * 1024

// ErrNoRecordBoundary is returned when delimited input has a record longer
// than the search window, so a segment cannot end on a record boundary.
var ErrNoRecordBoundary = errors.New("transfer: no record boundary found near segment end; use binary mode")

// Segment is a contiguous byte range of one file.
type Segment struct {
	Index  int   `json:"index"`
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the offset one past the last byte of the segment.
func (s Segment) End() int64 {
	return s.Offset + s.Length
}

// planSegments splits size bytes into ceil(size/maxLen) segments of nearly
// equal length. An empty file has one empty segment.
func planSegments(size, maxLen int64) []Segment {
	if size <= 0 {
		return []Segment{{}}
	}

	count := (size + maxLen - 1) / maxLen
	base := size / count
	rem := size % count

	segs := make([]Segment, 0, count)

	var offset int64
	for i := range count {
		length := base
		if i < rem {
			length++
		}

		segs = append(segs, Segment{Index: int(i), Offset: offset, Length: length})
		offset += length
	}

	return segs
}

// alignToRecords moves every interior segment boundary forward to just past
// the next '\n' so that no record is split across segments. Boundaries that
// collapse into each other are merged.
func alignToRecords(r io.ReaderAt, size int64, segs []Segment) ([]Segment, error) {
	if len(segs) <= 1 {
		return segs, nil
	}

	boundaries := []int64{0}
	prev := int64(0)

	for _, s := range segs[1:] {
		if s.Offset <= prev {
			continue
		}

		b, err := nextRecordBoundary(r, s.Offset, size)
		if err != nil {
			return nil, err
		}

		if b >= size {
			break
		}

		if b > prev {
			boundaries = append(boundaries, b)
			prev = b
		}
	}

	out := make([]Segment, 0, len(boundaries))
	for i, start := range boundaries {
		end := size
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}

		out = append(out, Segment{Index: i, Offset: start, Length: end - start})
	}

	return out, nil
}

// nextRecordBoundary returns the offset just past the first '\n' at or
// after from-1, so a boundary that already follows a newline stays put.
// Reaching the end of input without a newline returns size.
func nextRecordBoundary(r io.ReaderAt, from, size int64) (int64, error) {
	start := from - 1
	window := min(int64(recordSearchLimit)+1, size-start)

	buf := make([]byte, window)

	n, err := r.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("transfer: reading near offset %d: %w", from, err)
	}

	if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
		return start + int64(i) + 1, nil
	}

	if start+int64(n) >= size {
		return size, nil
	}

	return 0, fmt.Errorf("%w (offset %d)", ErrNoRecordBoundary, from)
}

// segmentsFor plans the segments of a local file, aligning to records
// unless binary is set.
func segmentsFor(r io.ReaderAt, size, maxLen int64, binary bool) ([]Segment, error) {
	segs := planSegments(size, maxLen)
	if binary {
		return segs, nil
	}

	return alignToRecords(r, size, segs)
}
