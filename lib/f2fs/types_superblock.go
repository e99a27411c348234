// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/fmtutil"
)

const (
	SuperblockMagic = 0xF2F52010
	// SuperblockOffset is the byte offset of the superblock within
	// each of the first two blocks.
	SuperblockOffset = 0x400
	// superblockCRCOffset is where the checksum lives when
	// FeatureSBChecksum is set.
	superblockCRCOffset = 0xbfc
)

type Superblock struct {
	Magic              uint32 `bin:"off=0x0,  siz=0x4"`
	MajorVer           uint16 `bin:"off=0x4,  siz=0x2"`
	MinorVer           uint16 `bin:"off=0x6,  siz=0x2"`
	LogSectorSize      uint32 `bin:"off=0x8,  siz=0x4"`
	LogSectorsPerBlock uint32 `bin:"off=0xc,  siz=0x4"`
	LogBlockSize       uint32 `bin:"off=0x10, siz=0x4"`
	LogBlocksPerSeg    uint32 `bin:"off=0x14, siz=0x4"`
	SegsPerSec         uint32 `bin:"off=0x18, siz=0x4"`
	SecsPerZone        uint32 `bin:"off=0x1c, siz=0x4"`
	ChecksumOffset     uint32 `bin:"off=0x20, siz=0x4"`
	BlockCount         uint64 `bin:"off=0x24, siz=0x8"`

	SectionCount     uint32 `bin:"off=0x2c, siz=0x4"`
	SegmentCount     uint32 `bin:"off=0x30, siz=0x4"` // everything from Segment0 on
	SegmentCountCkpt uint32 `bin:"off=0x34, siz=0x4"`
	SegmentCountSIT  uint32 `bin:"off=0x38, siz=0x4"`
	SegmentCountNAT  uint32 `bin:"off=0x3c, siz=0x4"`
	SegmentCountSSA  uint32 `bin:"off=0x40, siz=0x4"`
	SegmentCountMain uint32 `bin:"off=0x44, siz=0x4"`

	Segment0BlkAddr f2fsprim.BlockAddr `bin:"off=0x48, siz=0x4"`
	CPBlkAddr       f2fsprim.BlockAddr `bin:"off=0x4c, siz=0x4"`
	SITBlkAddr      f2fsprim.BlockAddr `bin:"off=0x50, siz=0x4"`
	NATBlkAddr      f2fsprim.BlockAddr `bin:"off=0x54, siz=0x4"`
	SSABlkAddr      f2fsprim.BlockAddr `bin:"off=0x58, siz=0x4"`
	MainBlkAddr     f2fsprim.BlockAddr `bin:"off=0x5c, siz=0x4"`

	RootIno f2fsprim.NID `bin:"off=0x60, siz=0x4"`
	NodeIno f2fsprim.NID `bin:"off=0x64, siz=0x4"`
	MetaIno f2fsprim.NID `bin:"off=0x68, siz=0x4"`

	UUID       f2fsprim.UUID `bin:"off=0x6c, siz=0x10"`
	VolumeName [0x400]byte   `bin:"off=0x7c, siz=0x400"` // UTF-16LE

	ExtensionCount uint32       `bin:"off=0x47c, siz=0x4"`
	ExtensionList  [64][8]byte  `bin:"off=0x480, siz=0x200"`
	CPPayload      uint32       `bin:"off=0x680, siz=0x4"`
	Version        [0x100]byte  `bin:"off=0x684, siz=0x100"` // kernel version that last wrote the fs
	InitVersion    [0x100]byte  `bin:"off=0x784, siz=0x100"` // kernel version that made the fs
	Features       FeatureFlags `bin:"off=0x884, siz=0x4"`

	EncryptionLevel uint8          `bin:"off=0x888, siz=0x1"`
	EncryptPWSalt   [16]byte       `bin:"off=0x889, siz=0x10"`
	Devices         [8]DeviceEntry `bin:"off=0x899, siz=0x220"`
	QuotaFileIno    [3]uint32      `bin:"off=0xab9, siz=0xc"`
	HotExtCount     uint8          `bin:"off=0xac5, siz=0x1"`
	Encoding        uint16         `bin:"off=0xac6, siz=0x2"`
	EncodingFlags   uint16         `bin:"off=0xac8, siz=0x2"`
	StopReason      [32]byte       `bin:"off=0xaca, siz=0x20"`
	Errors          [16]byte       `bin:"off=0xaea, siz=0x10"`
	Reserved        [258]byte      `bin:"off=0xafa, siz=0x102"`
	CRC             uint32         `bin:"off=0xbfc, siz=0x4"`
	binstruct.End   `bin:"off=0xc00"`
}

type DeviceEntry struct {
	Path          [64]byte `bin:"off=0x0,  siz=0x40"`
	TotalSegments uint32   `bin:"off=0x40, siz=0x4"`
	binstruct.End `bin:"off=0x44"`
}

// Name returns the volume label.
func (sb Superblock) Name() string {
	raw := sb.VolumeName[:]
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			raw = raw[:i]
			break
		}
	}
	name, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return fmt.Sprintf("%q", raw)
	}
	return string(name)
}

// SetName stores a volume label.
func (sb *Superblock) SetName(name string) error {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	if err != nil {
		return err
	}
	if len(raw) > len(sb.VolumeName)-2 {
		return fmt.Errorf("volume name %q too long", name)
	}
	sb.VolumeName = [0x400]byte{}
	copy(sb.VolumeName[:], raw)
	return nil
}

func cString(dat []byte) string {
	if i := bytes.IndexByte(dat, 0); i >= 0 {
		dat = dat[:i]
	}
	return string(dat)
}

// KernelVersion returns the version string of the kernel that last
// wrote the filesystem.
func (sb Superblock) KernelVersion() string { return cString(sb.Version[:]) }

// CalculateChecksum returns the CRC over the superblock up to its
// checksum field.
func (sb Superblock) CalculateChecksum() (uint32, error) {
	dat, err := binstruct.Marshal(sb)
	if err != nil {
		return 0, err
	}
	return CRC(dat[:superblockCRCOffset]), nil
}

// ValidateChecksum checks the superblock CRC.  Superblocks without
// FeatureSBChecksum carry no checksum, and always pass.
func (sb Superblock) ValidateChecksum() error {
	if !sb.Features.Has(FeatureSBChecksum) {
		return nil
	}
	if sb.ChecksumOffset != superblockCRCOffset {
		return fmt.Errorf("checksum offset is %#x, expected %#x", sb.ChecksumOffset, superblockCRCOffset)
	}
	calced, err := sb.CalculateChecksum()
	if err != nil {
		return err
	}
	if calced != sb.CRC {
		return fmt.Errorf("superblock checksum mismatch: stored=%#08x calculated=%#08x", sb.CRC, calced)
	}
	return nil
}

// SanityCheck rejects superblocks whose geometry cannot describe a
// F2FS image of imageBlocks blocks.
func (sb Superblock) SanityCheck(imageBlocks uint64) error {
	if sb.Magic != SuperblockMagic {
		return fmt.Errorf("bad magic: %#08x", sb.Magic)
	}
	if err := sb.ValidateChecksum(); err != nil {
		return err
	}
	if sb.LogBlockSize != 12 {
		return fmt.Errorf("log_blocksize=%v, only 4KiB blocks are supported", sb.LogBlockSize)
	}
	if sb.LogBlocksPerSeg != 9 {
		return fmt.Errorf("log_blocks_per_seg=%v, only 512-block segments are supported", sb.LogBlocksPerSeg)
	}
	if sb.LogSectorSize < 9 || sb.LogSectorSize > 12 {
		return fmt.Errorf("log_sectorsize=%v out of range", sb.LogSectorSize)
	}
	if sb.LogSectorsPerBlock+sb.LogSectorSize != 12 {
		return fmt.Errorf("log_sectors_per_block=%v does not match log_sectorsize=%v",
			sb.LogSectorsPerBlock, sb.LogSectorSize)
	}
	if sb.SegmentCountCkpt < 2 || sb.SegmentCountSIT%2 != 0 || sb.SegmentCountNAT%2 != 0 ||
		sb.SegmentCountSIT == 0 || sb.SegmentCountNAT == 0 || sb.SegmentCountSSA == 0 || sb.SegmentCountMain == 0 {
		return errors.New("bad metadata segment counts")
	}

	// The regions must be laid out back to back.
	segBlocks := f2fsprim.BlockAddr(1) << sb.LogBlocksPerSeg
	type boundary struct {
		name      string
		start     f2fsprim.BlockAddr
		segments  uint32
		nextName  string
		nextStart f2fsprim.BlockAddr
	}
	for _, b := range []boundary{
		{"segment0", sb.Segment0BlkAddr, 0, "checkpoint", sb.CPBlkAddr},
		{"checkpoint", sb.CPBlkAddr, sb.SegmentCountCkpt, "SIT", sb.SITBlkAddr},
		{"SIT", sb.SITBlkAddr, sb.SegmentCountSIT, "NAT", sb.NATBlkAddr},
		{"NAT", sb.NATBlkAddr, sb.SegmentCountNAT, "SSA", sb.SSABlkAddr},
		{"SSA", sb.SSABlkAddr, sb.SegmentCountSSA, "main", sb.MainBlkAddr},
	} {
		if b.start+f2fsprim.BlockAddr(b.segments)*segBlocks != b.nextStart {
			return fmt.Errorf("%s area [%v, +%v segments) does not end at %s area %v",
				b.name, b.start, b.segments, b.nextName, b.nextStart)
		}
	}
	if uint64(sb.SegmentCountSSA)<<sb.LogBlocksPerSeg < uint64(sb.SegmentCountMain) {
		return fmt.Errorf("SSA area has %v segments, too few for %v main segments",
			sb.SegmentCountSSA, sb.SegmentCountMain)
	}
	metaSegs := sb.SegmentCountCkpt + sb.SegmentCountSIT + sb.SegmentCountNAT + sb.SegmentCountSSA
	if metaSegs+sb.SegmentCountMain != sb.SegmentCount {
		return fmt.Errorf("segment_count=%v but regions add up to %v", sb.SegmentCount, metaSegs+sb.SegmentCountMain)
	}
	endBlock := uint64(sb.Segment0BlkAddr) + uint64(sb.SegmentCount)<<sb.LogBlocksPerSeg
	if endBlock > sb.BlockCount {
		return fmt.Errorf("segments end at block %v, past block_count=%v", endBlock, sb.BlockCount)
	}
	if imageBlocks > 0 && sb.BlockCount > imageBlocks {
		return fmt.Errorf("block_count=%v but the image only has %v blocks", sb.BlockCount, imageBlocks)
	}
	if sb.RootIno == 0 || sb.NodeIno == 0 || sb.MetaIno == 0 {
		return errors.New("reserved inode number is zero")
	}
	return nil
}

type FeatureFlags uint32

const (
	FeatureEncrypt = FeatureFlags(1 << iota)
	FeatureBlkZoned
	FeatureAtomicWrite
	FeatureExtraAttr
	FeatureProjectQuota
	FeatureInodeChecksum
	FeatureFlexibleInlineXattr
	FeatureQuotaIno
	FeatureInodeCrtime
	FeatureLostFound
	FeatureVerity
	FeatureSBChecksum
	FeatureCasefold
	FeatureCompression
	FeatureRO
)

var featureNames = []string{
	"encrypt",
	"blkzoned",
	"atomic_write",
	"extra_attr",
	"project_quota",
	"inode_checksum",
	"flexible_inline_xattr",
	"quota_ino",
	"inode_crtime",
	"lost_found",
	"verity",
	"sb_checksum",
	"casefold",
	"compression",
	"ro",
}

func (f FeatureFlags) Has(req FeatureFlags) bool { return f&req == req }
func (f FeatureFlags) String() string {
	return fmtutil.BitfieldString(f, featureNames, fmtutil.HexLower)
}
