// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// CRC computes the F2FS checksum of dat: a reflected CRC-32 with the
// IEEE polynomial, seeded with the superblock magic, and without the
// final inversion.
func CRC(dat []byte) uint32 {
	return ^crc32.Update(^uint32(SuperblockMagic), crc32.IEEETable, dat)
}

// verifyBlockCRC checks a block whose CRC is stored as a 32-bit
// little-endian integer at crcOffset, covering every byte before it.
func verifyBlockCRC(block []byte, crcOffset uint32) error {
	if int(crcOffset)+4 > len(block) {
		return fmt.Errorf("checksum offset %v out of bounds", crcOffset)
	}
	stored := binary.LittleEndian.Uint32(block[crcOffset:])
	calced := CRC(block[:crcOffset])
	if stored != calced {
		return fmt.Errorf("checksum mismatch: stored=%#08x calculated=%#08x", stored, calced)
	}
	return nil
}

// sealBlockCRC stores the CRC of block[:crcOffset] at crcOffset.
func sealBlockCRC(block []byte, crcOffset uint32) {
	binary.LittleEndian.PutUint32(block[crcOffset:], CRC(block[:crcOffset]))
}
