package protocol

// CRC-8/SMBUS: polynomial x^8 + x^2 + x + 1 (0x07), init 0x00, no reflection
const crc8Poly = 0x07

var crc8Table = func() (t [256]byte) {
	for i := range t {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crc8Poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC8 computes the frame trailer over data
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}
