package schema

import (
	"fmt"
	"sort"

	"github.com/OneOfOne/xxhash"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/constants"
	"github.com/behrlich/blockwheel/internal/task"
)

// headerOverhead approximates the fixed per-block trailer cost (id, length,
// checksum) the real on-disk format would spend alongside the payload.
const headerOverhead = constants.HeaderOverhead

type extent struct {
	offset uint64
	length uint64
}

// Memory is the reference Oracle: a single-writer, in-memory free-space map
// and block directory. It is not safe for concurrent use — like the
// performer itself, it assumes one caller driving it step by step.
//
// Unlike the narrative in §3 ("BlockEntry... created on successful
// write-task completion"), this reference implementation creates the entry
// eagerly at request time, the moment placement is decided. The performer
// needs BlockOffsetTasksHead/BlockTasksHead to resolve for a block the
// instant it's placed — e.g. a second client request for the same
// newly-written block id, arriving before the write task even completes,
// must still serialize onto that block's FIFO. Confirmation at task-done
// time becomes bookkeeping rather than entry creation.
type Memory struct {
	capacity uint64
	tail     uint64
	nextID   block.Id

	free []extent // sorted by offset, merged, non-overlapping

	blocks     map[block.Id]*BlockEntry
	offsets    []uint64 // sorted offsets of live blocks
	offsetToID map[uint64]block.Id

	defragEnabled bool
}

// New creates a reference schema over a file of the given capacity.
// defragEnabled mirrors whether the performer was constructed with a
// DefragConfig: when false, oversized/unplaceable writes always fail
// immediately with NoSpaceLeft rather than queuing for later retry.
func New(capacity uint64, defragEnabled bool) *Memory {
	return &Memory{
		capacity:      capacity,
		blocks:        make(map[block.Id]*BlockEntry),
		offsetToID:    make(map[uint64]block.Id),
		defragEnabled: defragEnabled,
	}
}

func checksum(data []byte) uint64 {
	return xxhash.Checksum64(data)
}

func (m *Memory) ProcessWriteBlockRequest(payload block.Bytes) WriteOutcome {
	size := headerOverhead + uint64(payload.Len())

	if offset, ok := m.allocateFromFree(size); ok {
		return m.place(offset, task.CommitOnly, payload)
	}
	if m.tail+size <= m.capacity {
		offset := m.tail
		m.tail += size
		return m.place(offset, task.CommitAndEof, payload)
	}
	if m.defragEnabled && size <= m.capacity {
		return WriteQueuePendingDefrag{}
	}
	return WriteReplyNoSpaceLeft{}
}

// place creates a fresh BlockEntry for a newly placed block and records it
// as live immediately.
func (m *Memory) place(offset uint64, commit task.CommitType, payload block.Bytes) WritePerform {
	bid := m.nextID
	m.nextID++
	head := &task.TasksHead{}

	entry := &BlockEntry{
		Offset: offset,
		Header: block.Header{
			BlockID:    bid,
			PayloadLen: uint64(payload.Len()),
			Checksum:   checksum(payload.Bytes()),
		},
		Length:    headerOverhead + uint64(payload.Len()),
		TasksHead: head,
	}
	m.blocks[bid] = entry
	m.insertLive(offset, bid)

	return WritePerform{
		BlockID:   bid,
		Offset:    offset,
		Commit:    commit,
		DefragOp:  DefragOpNone{},
		TasksHead: head,
	}
}

// allocateFromFree finds the first free extent big enough for size,
// shrinking or removing it. Leftover space stays in the free list.
func (m *Memory) allocateFromFree(size uint64) (uint64, bool) {
	for i, ext := range m.free {
		if ext.length < size {
			continue
		}
		offset := ext.offset
		remaining := ext.length - size
		if remaining == 0 {
			m.free = append(m.free[:i], m.free[i+1:]...)
		} else {
			m.free[i] = extent{offset: offset + size, length: remaining}
		}
		return offset, true
	}
	return 0, false
}

func (m *Memory) freeExtent(offset, length uint64) {
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].offset >= offset })
	merged := extent{offset: offset, length: length}

	// Merge with the following extent if contiguous.
	if i < len(m.free) && merged.offset+merged.length == m.free[i].offset {
		merged.length += m.free[i].length
		m.free = append(m.free[:i], m.free[i+1:]...)
	}
	// Merge with the preceding extent if contiguous.
	if i > 0 && m.free[i-1].offset+m.free[i-1].length == merged.offset {
		merged.offset = m.free[i-1].offset
		merged.length += m.free[i-1].length
		i--
		m.free = append(m.free[:i], m.free[i+1:]...)
	}

	m.free = append(m.free, extent{})
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = merged
}

func (m *Memory) isFreeAt(offset uint64) bool {
	for _, ext := range m.free {
		if ext.offset == offset {
			return true
		}
	}
	return false
}

func (m *Memory) insertLive(offset uint64, bid block.Id) {
	i := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] >= offset })
	m.offsets = append(m.offsets, 0)
	copy(m.offsets[i+1:], m.offsets[i:])
	m.offsets[i] = offset
	m.offsetToID[offset] = bid
}

func (m *Memory) removeLive(offset uint64) {
	i := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] >= offset })
	if i < len(m.offsets) && m.offsets[i] == offset {
		m.offsets = append(m.offsets[:i], m.offsets[i+1:]...)
	}
	delete(m.offsetToID, offset)
}

func (m *Memory) ProcessReadBlockRequest(bid block.Id) ReadOutcome {
	entry, ok := m.blocks[bid]
	if !ok {
		return ReadNotFound{}
	}
	if entry.CachedPayload != nil {
		return ReadCached{Bytes: *entry.CachedPayload}
	}
	return ReadPerform{Offset: entry.Offset, Header: entry.Header, TasksHead: entry.TasksHead}
}

func (m *Memory) ProcessDeleteBlockRequest(bid block.Id) DeleteOutcome {
	entry, ok := m.blocks[bid]
	if !ok {
		return DeleteNotFound{}
	}
	return DeletePerform{Offset: entry.Offset, Length: entry.Length, TasksHead: entry.TasksHead}
}

// ProcessWriteBlockTaskDone confirms a placement the request already
// created. It exists so the performer's uniform "tell the schema a write
// task finished" call site doesn't need to special-case the eager-creation
// simplification above.
func (m *Memory) ProcessWriteBlockTaskDone(bid block.Id) {
	if _, ok := m.blocks[bid]; !ok {
		panic(fmt.Sprintf("schema: write-task-done for unknown block %s", bid))
	}
}

func (m *Memory) ProcessReadBlockTaskDone(bid block.Id, payload block.Bytes) bool {
	entry, ok := m.blocks[bid]
	if !ok {
		panic(fmt.Sprintf("schema: read-task-done for unknown block %s", bid))
	}
	return checksum(payload.Bytes()) != entry.Header.Checksum
}

func (m *Memory) ProcessDeleteBlockTaskDone(bid block.Id) (BlockEntry, DefragOp) {
	entry, ok := m.blocks[bid]
	if !ok {
		panic(fmt.Sprintf("schema: delete-task-done for unknown block %s", bid))
	}
	delete(m.blocks, bid)
	m.removeLive(entry.Offset)
	m.freeExtent(entry.Offset, entry.Length)

	hint := DefragOp(DefragOpNone{})
	if m.defragEnabled {
		hint = DefragOpQueue{FreeSpaceOffset: entry.Offset, SpaceKey: entry.Offset}
	}
	return *entry, hint
}

func (m *Memory) ProcessDeleteBlockTaskDoneDefrag(bid block.Id, spaceKey any, payload block.Bytes, tasksHead *task.TasksHead) DeleteTaskDoneDefragOutcome {
	old, ok := m.blocks[bid]
	if !ok {
		panic(fmt.Sprintf("schema: defrag delete-task-done for unknown block %s", bid))
	}
	m.removeLive(old.Offset)
	m.freeExtent(old.Offset, old.Length)

	size := headerOverhead + uint64(payload.Len())

	var offset uint64
	var commit task.CommitType
	if o, ok := m.allocateFromFree(size); ok {
		offset, commit = o, task.CommitOnly
	} else if m.tail+size <= m.capacity {
		offset, commit = m.tail, task.CommitAndEof
		m.tail += size
	} else {
		panic("schema: defrag relocation found no space for a block it just freed")
	}

	entry := &BlockEntry{
		Offset: offset,
		Header: block.Header{
			BlockID:    bid,
			PayloadLen: uint64(payload.Len()),
			Checksum:   checksum(payload.Bytes()),
		},
		Length:    size,
		TasksHead: tasksHead,
	}
	m.blocks[bid] = entry
	m.insertLive(offset, bid)

	hint := DefragOp(DefragOpNone{})
	if m.defragEnabled {
		if freeOffset, ok := spaceKey.(uint64); ok && m.isFreeAt(freeOffset) {
			hint = DefragOpQueue{FreeSpaceOffset: freeOffset, SpaceKey: freeOffset}
		}
	}

	return DeleteTaskDoneDefragOutcome{Offset: offset, Commit: commit, DefragOp: hint}
}

// StashDefragPayload records the payload a defrag read just collected for
// bid. It is cleared implicitly when the relocation's delete completes:
// ProcessDeleteBlockTaskDoneDefrag replaces the BlockEntry outright with
// one at the new offset, before the follow-up write runs.
func (m *Memory) StashDefragPayload(bid block.Id, payload block.Bytes) {
	entry, ok := m.blocks[bid]
	if !ok {
		panic(fmt.Sprintf("schema: stash-defrag-payload for unknown block %s", bid))
	}
	if entry.CachedPayload != nil {
		panic(fmt.Sprintf("schema: duplicate cached payload during defrag for block %s", bid))
	}
	entry.CachedPayload = &payload
}

// Entry returns a live block's current record, if it exists.
func (m *Memory) Entry(bid block.Id) (BlockEntry, bool) {
	entry, ok := m.blocks[bid]
	if !ok {
		return BlockEntry{}, false
	}
	return *entry, true
}

func (m *Memory) PickDefragSpaceKey(spaceKey any) (BlockEntry, bool) {
	freeOffset, ok := spaceKey.(uint64)
	if !ok || !m.isFreeAt(freeOffset) {
		return BlockEntry{}, false
	}
	i := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] > freeOffset })
	if i == len(m.offsets) {
		return BlockEntry{}, false
	}
	bid := m.offsetToID[m.offsets[i]]
	return *m.blocks[bid], true
}

func (m *Memory) BlockOffsetTasksHead(bid block.Id) (uint64, *task.TasksHead, bool) {
	entry, ok := m.blocks[bid]
	if !ok {
		return 0, nil, false
	}
	return entry.Offset, entry.TasksHead, true
}

func (m *Memory) BlockTasksHead(bid block.Id) (*task.TasksHead, bool) {
	entry, ok := m.blocks[bid]
	if !ok {
		return nil, false
	}
	return entry.TasksHead, true
}

func (m *Memory) Stats() Stats {
	var free uint64
	for _, ext := range m.free {
		free += ext.length
	}
	free += m.capacity - m.tail
	return Stats{
		Size:          m.capacity,
		BlockCount:    len(m.blocks),
		FreeBytes:     free,
		OccupiedBytes: m.capacity - free,
	}
}
