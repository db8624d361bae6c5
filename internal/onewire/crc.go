package onewire

// CRC8 computes the Dallas/Maxim CRC-8 (polynomial x^8 + x^5 + x^4 + 1,
// reflected) used by 1-Wire ROM codes and the DS18B20 scratchpad.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
