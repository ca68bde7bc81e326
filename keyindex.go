package mesh

// PackKeyIndex packs a 12-bit key index into the two bytes carried in
// provisioning data. With hi, lo the big-endian bytes of index:
//
//	byte0 = hi<<4 | lo>>4
//	byte1 = lo<<4
//
// Deployed nodes expect this layout, so 0x0001 packs to 00 10.
func PackKeyIndex(index uint16) [2]byte {
	hi := byte(index >> 8)
	lo := byte(index)

	return [2]byte{hi<<4 | lo>>4, lo << 4}
}
