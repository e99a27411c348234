// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/fmtutil"
)

const (
	// AddrsPerInode is the number of address slots in an inode,
	// before extra attributes and inline xattrs take their share.
	AddrsPerInode = 923
	// SlotsPerNode is the number of addresses in a direct node, and
	// of node ids in an indirect node.
	SlotsPerNode = 1018
	// NIDsPerInode is the number of node id slots in an inode.
	NIDsPerInode = 5

	nodeBodySize   = 0xfe8
	nodeFooterSize = 0x18

	defaultInlineXattrAddrs = 50

	nodeOffsetShift = 3
	// xattrNodeOffset is the footer offset value that marks an
	// xattr node.
	xattrNodeOffset = 1<<(32-nodeOffsetShift) - 1
)

// Inode node-id slots.
const (
	InodeDirect1 = iota
	InodeDirect2
	InodeIndirect1
	InodeIndirect2
	InodeDoubleIndirect
)

type NodeFooter struct {
	NID           f2fsprim.NID       `bin:"off=0x0,  siz=0x4"`
	Ino           f2fsprim.NID       `bin:"off=0x4,  siz=0x4"`
	Flag          uint32             `bin:"off=0x8,  siz=0x4"`
	CPVer         uint64             `bin:"off=0xc,  siz=0x8"`
	NextBlkAddr   f2fsprim.BlockAddr `bin:"off=0x14, siz=0x4"`
	binstruct.End `bin:"off=0x18"`
}

// Offset is the node's position in its file's node tree, as the
// number of nodes that precede it in a depth-first walk.
func (f NodeFooter) Offset() uint32 { return f.Flag >> nodeOffsetShift }

// SetOffset stores the node offset, keeping the low flag bits.
func (f *NodeFooter) SetOffset(ofs uint32) {
	f.Flag = ofs<<nodeOffsetShift | f.Flag&(1<<nodeOffsetShift-1)
}

// Kind decides what the node is from the footer alone.
func (f NodeFooter) Kind() NodeKind {
	if f.NID == f.Ino {
		return NodeInode
	}
	const n = SlotsPerNode
	ofs := f.Offset()
	switch {
	case ofs == xattrNodeOffset:
		return NodeXattr
	case ofs == 0:
		return NodeUnknown
	case ofs == 3 || ofs == 4+n:
		return NodeIndirect
	case ofs == 5+2*n:
		return NodeDoubleIndirect
	case ofs >= 6+2*n && (ofs-(6+2*n))%(n+1) == 0:
		return NodeIndirect
	default:
		return NodeDirect
	}
}

// InodeChildOffset is the node offset that the node in inode node-id
// slot i must carry.
func InodeChildOffset(slot int) uint32 {
	const n = SlotsPerNode
	return [NIDsPerInode]uint32{1, 2, 3, 4 + n, 5 + 2*n}[slot]
}

// ChildOffset is the node offset that child idx of an indirect or
// double-indirect node at offset parent must carry.
func ChildOffset(parentKind NodeKind, parent uint32, idx int) uint32 {
	if parentKind == NodeDoubleIndirect {
		return parent + 1 + uint32(idx)*(SlotsPerNode+1)
	}
	return parent + 1 + uint32(idx)
}

// NodeKind is the variant of a node block.
type NodeKind uint8

const (
	NodeUnknown NodeKind = iota
	NodeInode
	NodeDirect
	NodeIndirect
	NodeDoubleIndirect
	NodeXattr
)

func (k NodeKind) String() string {
	names := map[NodeKind]string{
		NodeUnknown:        "unknown",
		NodeInode:          "inode",
		NodeDirect:         "direct",
		NodeIndirect:       "indirect",
		NodeDoubleIndirect: "double-indirect",
		NodeXattr:          "xattr",
	}
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Height is how many node levels the kind spans below it: a direct
// node points at data, an indirect node at direct nodes, and so on.
// Inodes and xattr nodes have no meaningful height and return -1.
func (k NodeKind) Height() int {
	switch k {
	case NodeDirect:
		return 0
	case NodeIndirect:
		return 1
	case NodeDoubleIndirect:
		return 2
	default:
		return -1
	}
}

type Extent struct {
	FileOfs       uint32             `bin:"off=0x0, siz=0x4"`
	BlkAddr       f2fsprim.BlockAddr `bin:"off=0x4, siz=0x4"`
	Len           uint32             `bin:"off=0x8, siz=0x4"`
	binstruct.End `bin:"off=0xc"`
}

type Inode struct {
	Mode          uint16       `bin:"off=0x0,  siz=0x2"`
	Advise        uint8        `bin:"off=0x2,  siz=0x1"`
	Inline        InlineFlags  `bin:"off=0x3,  siz=0x1"`
	UID           uint32       `bin:"off=0x4,  siz=0x4"`
	GID           uint32       `bin:"off=0x8,  siz=0x4"`
	Links         uint32       `bin:"off=0xc,  siz=0x4"`
	Size          uint64       `bin:"off=0x10, siz=0x8"`
	Blocks        uint64       `bin:"off=0x18, siz=0x8"`
	ATime         uint64       `bin:"off=0x20, siz=0x8"`
	CTime         uint64       `bin:"off=0x28, siz=0x8"`
	MTime         uint64       `bin:"off=0x30, siz=0x8"`
	ATimeNsec     uint32       `bin:"off=0x38, siz=0x4"`
	CTimeNsec     uint32       `bin:"off=0x3c, siz=0x4"`
	MTimeNsec     uint32       `bin:"off=0x40, siz=0x4"`
	Generation    uint32       `bin:"off=0x44, siz=0x4"`
	CurrentDepth  uint32       `bin:"off=0x48, siz=0x4"`
	XattrNID      f2fsprim.NID `bin:"off=0x4c, siz=0x4"`
	Flags         uint32       `bin:"off=0x50, siz=0x4"`
	ParentIno     f2fsprim.NID `bin:"off=0x54, siz=0x4"`
	NameLen       uint32       `bin:"off=0x58, siz=0x4"`
	Name          [0xff]byte   `bin:"off=0x5c, siz=0xff"`
	DirLevel      uint8        `bin:"off=0x15b, siz=0x1"`
	Extent        Extent       `bin:"off=0x15c, siz=0xc"`

	// With InlineExtraAttr, the first slots hold extra attributes
	// instead of addresses; see ExtraISize.
	Addrs         [AddrsPerInode]f2fsprim.BlockAddr `bin:"off=0x168, siz=0xe6c"`
	NIDs          [NIDsPerInode]f2fsprim.NID        `bin:"off=0xfd4, siz=0x14"`
	binstruct.End `bin:"off=0xfe8"`
}

type InlineFlags uint8

const (
	InlineXattr = InlineFlags(1 << iota)
	InlineData
	InlineDentry
	InlineDataExist
	InlineDots
	InlineExtraAttr
	InlinePinFile
	InlineCompressReleased
)

var inlineFlagNames = []string{
	"inline_xattr",
	"inline_data",
	"inline_dentry",
	"data_exist",
	"inline_dots",
	"extra_attr",
	"pin_file",
	"compress_released",
}

func (f InlineFlags) Has(req InlineFlags) bool { return f&req == req }
func (f InlineFlags) String() string {
	return fmtutil.BitfieldString(f, inlineFlagNames, fmtutil.HexLower)
}

// FileName returns the name the inode was created with.
func (in Inode) FileName() string {
	n := int(in.NameLen)
	if n > len(in.Name) {
		n = len(in.Name)
	}
	return string(in.Name[:n])
}

// ExtraISize is the size in bytes of the extra attribute area at the
// start of Addrs.
func (in Inode) ExtraISize() int {
	if !in.Inline.Has(InlineExtraAttr) {
		return 0
	}
	return int(uint32(in.Addrs[0]) & 0xffff)
}

// inlineXattrAddrs is the number of trailing address slots given
// over to inline xattrs.
func (in Inode) inlineXattrAddrs(features FeatureFlags) int {
	if !in.Inline.Has(InlineXattr) {
		return 0
	}
	if in.Inline.Has(InlineExtraAttr) && features.Has(FeatureFlexibleInlineXattr) {
		return int(uint32(in.Addrs[0]) >> 16)
	}
	return defaultInlineXattrAddrs
}

// HasDataPointers returns false for inodes whose address area holds
// inline file content or directory entries.
func (in Inode) HasDataPointers() bool {
	return !in.Inline.Has(InlineData) && !in.Inline.Has(InlineDentry)
}

// DataAddrs returns the address slots that point at data blocks.
// Inodes without data pointers return nil.
func (in *Inode) DataAddrs(features FeatureFlags) ([]f2fsprim.BlockAddr, error) {
	if !in.HasDataPointers() {
		return nil, nil
	}
	start := in.ExtraISize() / 4
	end := AddrsPerInode - in.inlineXattrAddrs(features)
	if start > end {
		return nil, fmt.Errorf("extra attributes (%v slots) overlap inline xattrs (from slot %v)", start, end)
	}
	return in.Addrs[start:end], nil
}

// DirectNode holds data block addresses.
type DirectNode struct {
	Addrs         [SlotsPerNode]f2fsprim.BlockAddr `bin:"off=0x0, siz=0xfe8"`
	binstruct.End `bin:"off=0xfe8"`
}

// IndirectNode holds node ids; it is used for both single and double
// indirect nodes.
type IndirectNode struct {
	NIDs          [SlotsPerNode]f2fsprim.NID `bin:"off=0x0, siz=0xfe8"`
	binstruct.End `bin:"off=0xfe8"`
}

// Node is a decoded node block.  Exactly one of the body pointers is
// set, as selected by Kind; unknown nodes and xattr nodes keep the
// raw body.
type Node struct {
	Kind   NodeKind
	Footer NodeFooter

	Inode    *Inode        `json:",omitempty" yaml:",omitempty"`
	Direct   *DirectNode   `json:",omitempty" yaml:",omitempty"`
	Indirect *IndirectNode `json:",omitempty" yaml:",omitempty"`
	Raw      []byte        `json:"-" yaml:"-"`
}

var _ binstruct.Unmarshaler = (*Node)(nil)

func (Node) BinaryStaticSize() int { return f2fsprim.BlockSize }

// UnmarshalBinary decodes a node block, reading the footer first to
// decide how to read the body.
func (node *Node) UnmarshalBinary(dat []byte) (int, error) {
	*node = Node{}
	if len(dat) < f2fsprim.BlockSize {
		return 0, fmt.Errorf("node block: need %v bytes, only have %v", f2fsprim.BlockSize, len(dat))
	}
	if _, err := binstruct.Unmarshal(dat[nodeBodySize:f2fsprim.BlockSize], &node.Footer); err != nil {
		return 0, err
	}
	node.Kind = node.Footer.Kind()
	body := dat[:nodeBodySize]
	var err error
	switch node.Kind {
	case NodeInode:
		node.Inode = new(Inode)
		_, err = binstruct.Unmarshal(body, node.Inode)
	case NodeDirect:
		node.Direct = new(DirectNode)
		_, err = binstruct.Unmarshal(body, node.Direct)
	case NodeIndirect, NodeDoubleIndirect:
		node.Indirect = new(IndirectNode)
		_, err = binstruct.Unmarshal(body, node.Indirect)
	default:
		node.Raw = append([]byte(nil), body...)
	}
	if err != nil {
		return 0, err
	}
	return f2fsprim.BlockSize, nil
}

// MarshalBinary encodes the node, taking the body from whichever
// pointer is set.
func (node Node) MarshalBinary() ([]byte, error) {
	var body []byte
	var err error
	switch {
	case node.Inode != nil:
		body, err = binstruct.Marshal(*node.Inode)
	case node.Direct != nil:
		body, err = binstruct.Marshal(*node.Direct)
	case node.Indirect != nil:
		body, err = binstruct.Marshal(*node.Indirect)
	default:
		body = make([]byte, nodeBodySize)
		copy(body, node.Raw)
	}
	if err != nil {
		return nil, err
	}
	footer, err := binstruct.Marshal(node.Footer)
	if err != nil {
		return nil, err
	}
	return append(body, footer...), nil
}
