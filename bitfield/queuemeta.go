package bitfield

import "encoding/binary"

const (
	QueueMetaHeadFirstByte = 0
	QueueMetaHeadEnd       = QueueMetaHeadFirstByte + 8
	QueueMetaTailFirstByte = QueueMetaHeadEnd
	QueueMetaTailEnd       = QueueMetaTailFirstByte + 8
	QueueMetaNextFirstByte = QueueMetaTailEnd
	QueueMetaNextEnd       = QueueMetaNextFirstByte + 8
	QueueMetaSizeFirstByte = QueueMetaNextEnd
	QueueMetaSizeEnd       = QueueMetaSizeFirstByte + 8
)

// QueueMeta is the unpacked per owner queue metadata. Head and Tail are node
// ids, zero meaning no node. NextNodeID is the node id allocator and only
// ever increases.
type QueueMeta struct {
	Head       uint64
	Tail       uint64
	NextNodeID uint64
	Size       uint64
}

func PackQueueMeta(m QueueMeta) Word {
	var w Word
	binary.BigEndian.PutUint64(w[QueueMetaHeadFirstByte:QueueMetaHeadEnd], m.Head)
	binary.BigEndian.PutUint64(w[QueueMetaTailFirstByte:QueueMetaTailEnd], m.Tail)
	binary.BigEndian.PutUint64(w[QueueMetaNextFirstByte:QueueMetaNextEnd], m.NextNodeID)
	binary.BigEndian.PutUint64(w[QueueMetaSizeFirstByte:QueueMetaSizeEnd], m.Size)
	return w
}

func UnpackQueueMeta(w Word) QueueMeta {
	return QueueMeta{
		Head:       binary.BigEndian.Uint64(w[QueueMetaHeadFirstByte:QueueMetaHeadEnd]),
		Tail:       binary.BigEndian.Uint64(w[QueueMetaTailFirstByte:QueueMetaTailEnd]),
		NextNodeID: binary.BigEndian.Uint64(w[QueueMetaNextFirstByte:QueueMetaNextEnd]),
		Size:       binary.BigEndian.Uint64(w[QueueMetaSizeFirstByte:QueueMetaSizeEnd]),
	}
}
