// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"errors"
	"fmt"

	"github.com/datawire/dlib/derror"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// NodeExpectations are things the caller knows about a node before
// reading it, which the node's own footer should agree with.
type NodeExpectations struct {
	Ino  containers.Optional[f2fsprim.NID]
	Kind containers.Optional[NodeKind]
}

type NodeError struct {
	Op   string
	NID  f2fsprim.NID
	Addr f2fsprim.BlockAddr
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: node %v@%v: %v", e.Op, e.NID, e.Addr, e.Err)
}
func (e *NodeError) Unwrap() error { return e.Err }

// ReadNodeAt reads and decodes the node block at addr, without
// checking it against anything.
func (fs *FS) ReadNodeAt(addr f2fsprim.BlockAddr) (*Node, error) {
	node := new(Node)
	err := fs.withBlock("read node block", addr, func(block []byte) error {
		_, err := binstruct.Unmarshal(block, node)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ReadNode resolves nid through the NAT and reads its block.
//
// It is possible that both a non-nil node and an error are returned;
// the error then holds a derror.MultiError of the ways the node
// disagrees with the NAT or with exp.  An unallocated nid returns
// ErrUnallocated; a bad nid returns *RangeError; a failed read
// returns *IOError.
func (fs *FS) ReadNode(nid f2fsprim.NID, exp NodeExpectations) (*Node, NATEntry, error) {
	ent, err := fs.ResolveNID(nid)
	if err != nil {
		return nil, ent, err
	}
	if !ent.IsAllocated() {
		return nil, ent, &NodeError{Op: "f2fs.ReadNode", NID: nid, Err: ErrUnallocated}
	}
	if !ent.BlockAddr.IsReal() {
		return nil, ent, &NodeError{Op: "f2fs.ReadNode", NID: nid, Addr: ent.BlockAddr,
			Err: fmt.Errorf("NAT has placeholder address %v", ent.BlockAddr)}
	}
	if _, err := fs.Geometry.Classify(ent.BlockAddr); err != nil {
		return nil, ent, &NodeError{Op: "f2fs.ReadNode", NID: nid, Addr: ent.BlockAddr, Err: err}
	}
	node, err := fs.ReadNodeAt(ent.BlockAddr)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return nil, ent, err
		}
		return nil, ent, &NodeError{Op: "f2fs.ReadNode", NID: nid, Addr: ent.BlockAddr, Err: err}
	}

	var errs derror.MultiError
	if node.Footer.NID != nid {
		errs = append(errs, fmt.Errorf("footer claims nid=%v", node.Footer.NID))
	}
	if node.Footer.Ino != ent.Ino {
		errs = append(errs, fmt.Errorf("NAT says ino=%v but footer claims ino=%v", ent.Ino, node.Footer.Ino))
	}
	if exp.Ino.OK && node.Footer.Ino != exp.Ino.Val {
		errs = append(errs, fmt.Errorf("expected ino=%v but footer claims ino=%v", exp.Ino.Val, node.Footer.Ino))
	}
	if exp.Kind.OK && node.Kind != exp.Kind.Val {
		errs = append(errs, fmt.Errorf("expected a %v node but footer says %v", exp.Kind.Val, node.Kind))
	}
	if len(errs) > 0 {
		return node, ent, &NodeError{Op: "f2fs.ReadNode", NID: nid, Addr: ent.BlockAddr, Err: errs}
	}
	return node, ent, nil
}
