// Package jpegx walks JPEG marker streams without decoding entropy data.
package jpegx

const (
	markerStart = 0xff

	markerSOI = 0xd8 // Start Of Image.
	markerEOI = 0xd9 // End Of Image.
	markerSOS = 0xda // Start Of Scan.
	markerDHT = 0xc4 // Define Huffman Table.
	markerJPG = 0xc8 // Reserved for JPEG extensions.
	markerDAC = 0xcc // Define Arithmetic Coding conditioning.

	markerAPP1 = 0xe1
	markerAPP2 = 0xe2

	markerSOF0  = 0xc0 // Baseline sequential.
	markerSOF1  = 0xc1 // Extended sequential.
	markerSOF2  = 0xc2 // Progressive.
	markerSOF3  = 0xc3 // Lossless, used by many RAW formats for sensor data.
	markerSOF15 = 0xcf
)

var iccSig = []byte{'I', 'C', 'C', '_', 'P', 'R', 'O', 'F', 'I', 'L', 'E', 0}

func isRST(m byte) bool { return m >= 0xd0 && m <= 0xd7 }

// isSOF reports whether m is one of the thirteen start-of-frame markers.
func isSOF(m byte) bool {
	if m < markerSOF0 || m > markerSOF15 {
		return false
	}
	return m != markerDHT && m != markerJPG && m != markerDAC
}

func isLosslessSOF(m byte) bool {
	switch m {
	case markerSOF3, 0xc7, 0xcb, markerSOF15:
		return true
	}
	return false
}
