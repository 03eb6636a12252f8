package jpegx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

// FindEnd returns the offset just past the EOI marker of the JPEG stream
// that starts with SOI at start.
func FindEnd(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != markerStart || data[start+1] != markerSOI {
		return 0, errors.New("not a JPEG SOI")
	}
	pos := start + 2
	inScan := false
	for pos+1 < len(data) {
		if !inScan {
			if data[pos] != markerStart {
				pos++
				continue
			}
			for pos < len(data) && data[pos] == markerStart {
				pos++
			}
			if pos >= len(data) {
				break
			}
			marker := data[pos]
			pos++
			switch {
			case marker == markerSOI, isRST(marker), marker == 0x01:
				continue
			case marker == markerEOI:
				return pos, nil
			}
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker segment")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length")
			}
			pos += segLen
			inScan = marker == markerSOS
			continue
		}

		if data[pos] != markerStart {
			pos++
			continue
		}
		next := data[pos+1]
		switch {
		case next == 0x00, isRST(next):
			pos += 2
		case next == markerEOI:
			return pos + 2, nil
		default:
			// Tables between progressive scans.
			pos += 2
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker in scan")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length in scan")
			}
			pos += segLen
		}
	}
	return 0, errors.New("no EOI found")
}

// Scan returns [start, end) ranges of every well-formed JPEG stream found in
// data, such as the previews embedded in a RAW container.
func Scan(data []byte) [][2]int {
	var ranges [][2]int
	i := 0
	for i+2 < len(data) {
		if data[i] != markerStart || data[i+1] != markerSOI || data[i+2] != markerStart {
			i++
			continue
		}
		end, err := FindEnd(data, i)
		if err != nil {
			i++
			continue
		}
		ranges = append(ranges, [2]int{i, end})
		i = end
	}
	return ranges
}

// Largest returns the biggest JPEG stream in data.
func Largest(data []byte) ([]byte, bool) {
	best := [2]int{}
	for _, r := range Scan(data) {
		if r[1]-r[0] > best[1]-best[0] {
			best = r
		}
	}
	if best[1] == 0 {
		return nil, false
	}
	return data[best[0]:best[1]], true
}

// AppSegments returns copies of APP1 and APP2 payloads that precede the first scan.
func AppSegments(jpegData []byte) (app1 [][]byte, app2 [][]byte, err error) {
	err = walkHeader(jpegData, func(marker byte, payload []byte) bool {
		switch marker {
		case markerAPP1:
			app1 = append(app1, append([]byte(nil), payload...))
		case markerAPP2:
			app2 = append(app2, append([]byte(nil), payload...))
		}
		return true
	})
	return app1, app2, err
}

// ICCProfile reassembles a chunked ICC profile from APP2 payloads.
func ICCProfile(app2 [][]byte) []byte {
	type chunk struct {
		seq  int
		data []byte
	}
	chunks := make([]chunk, 0, len(app2))
	for _, p := range app2 {
		// "ICC_PROFILE\0" + seq + total + profile bytes.
		if len(p) > len(iccSig)+2 && bytes.HasPrefix(p, iccSig) {
			chunks = append(chunks, chunk{seq: int(p[len(iccSig)]), data: p[len(iccSig)+2:]})
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })
	var out []byte
	for _, c := range chunks {
		out = append(out, c.data...)
	}
	return out
}

// walkHeader calls fn for every marker segment up to SOS or EOI.
// Walking stops early when fn returns false.
func walkHeader(data []byte, fn func(marker byte, payload []byte) bool) error {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return errors.New("invalid JPEG")
	}
	pos := 2
	for pos+3 < len(data) {
		if data[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == markerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			return nil
		}
		if isRST(marker) || marker == 0x01 {
			continue
		}
		if pos+1 >= len(data) {
			return errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			return errors.New("invalid segment length")
		}
		if !fn(marker, data[pos+2:pos+segLen]) {
			return nil
		}
		pos += segLen
	}
	return nil
}
