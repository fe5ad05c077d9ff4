package goetherlink

// CRC-8/CCITT: polynomial 0x07, initial value 0x00, no reflection.
// Table-driven so the parser can fold one byte at a time without ever
// re-scanning the receive buffer.

var crc8Table [256]byte

func init() {
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
		}
		crc8Table[i] = crc
	}
}

// CRC8 computes the CRC-8/CCITT checksum for the given data.
func CRC8(data []byte) byte {
	crc := byte(0)
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// CRC8Update folds one additional byte into a running CRC.
func CRC8Update(crc, b byte) byte {
	return crc8Table[crc^b]
}
