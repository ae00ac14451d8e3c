package ymodem

// crc16tab is the CRC-16/CCITT lookup table for polynomial 0x1021
// (non-reflected), as used by XMODEM and YMODEM.
var crc16tab = func() [256]uint16 {
	var tab [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}()

// updcrc16 folds one byte into a running CRC.
func updcrc16(c byte, crc uint16) uint16 {
	return crc16tab[byte(crc>>8)^c] ^ crc<<8
}

// CRC16 computes CRC-16/CCITT with a zero initial value over data.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, c := range data {
		crc = updcrc16(c, crc)
	}
	return crc
}
