package tube

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"

	pebblestore "github.com/dreadatour/deque/internal/storage/pebble"
	"github.com/dreadatour/deque/pkg/log"
)

// Task record: headerLen(4B BE) | header | payload | crc32c(header|payload)
//
// Header: id(8) state(1) epoch(8) objectType(8) objectID(8) toSendAt(8)
// validUntil(8) createdAt(8) chanLen(2) chan mtLen(2) messageType.
// Times are unix nanoseconds, zero meaning unset.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maxLabelLen bounds Channel and MessageType: the record header stores
// their lengths as uint16.
const maxLabelLen = 1<<16 - 1

func encodeTask(t *Task) []byte {
	header := make([]byte, 0, 57+4+len(t.Channel)+len(t.MessageType))
	var b8 [8]byte

	binary.BigEndian.PutUint64(b8[:], t.ID)
	header = append(header, b8[:]...)
	header = append(header, byte(t.State))
	binary.BigEndian.PutUint64(b8[:], t.Epoch)
	header = append(header, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], uint64(t.ObjectType))
	header = append(header, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], uint64(t.ObjectID))
	header = append(header, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], uint64(timeToNanos(t.ToSendAt)))
	header = append(header, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], uint64(timeToNanos(t.ValidUntil)))
	header = append(header, b8[:]...)
	binary.BigEndian.PutUint64(b8[:], uint64(timeToNanos(t.CreatedAt)))
	header = append(header, b8[:]...)

	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], uint16(len(t.Channel)))
	header = append(header, b2[:]...)
	header = append(header, t.Channel...)
	binary.BigEndian.PutUint16(b2[:], uint16(len(t.MessageType)))
	header = append(header, b2[:]...)
	header = append(header, t.MessageType...)

	out := make([]byte, 0, 4+len(header)+len(t.Payload)+4)
	var hb [4]byte
	binary.BigEndian.PutUint32(hb[:], uint32(len(header)))
	out = append(out, hb[:]...)
	out = append(out, header...)
	out = append(out, t.Payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, t.Payload)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...)
}

func decodeTask(b []byte) (*Task, bool) {
	if len(b) < 8 {
		return nil, false
	}
	hlen := binary.BigEndian.Uint32(b[:4])
	if 4+int(hlen)+4 > len(b) {
		return nil, false
	}
	headerEnd := 4 + int(hlen)
	header := b[4:headerEnd]
	payload := b[headerEnd : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return nil, false
	}

	if len(header) < 57+4 {
		return nil, false
	}
	t := &Task{}
	t.ID = binary.BigEndian.Uint64(header[0:8])
	t.State = State(header[8])
	t.Epoch = binary.BigEndian.Uint64(header[9:17])
	t.ObjectType = int64(binary.BigEndian.Uint64(header[17:25]))
	t.ObjectID = int64(binary.BigEndian.Uint64(header[25:33]))
	t.ToSendAt = nanosToTime(int64(binary.BigEndian.Uint64(header[33:41])))
	t.ValidUntil = nanosToTime(int64(binary.BigEndian.Uint64(header[41:49])))
	t.CreatedAt = nanosToTime(int64(binary.BigEndian.Uint64(header[49:57])))

	off := 57
	clen := int(binary.BigEndian.Uint16(header[off : off+2]))
	off += 2
	if off+clen+2 > len(header) {
		return nil, false
	}
	t.Channel = string(header[off : off+clen])
	off += clen
	mlen := int(binary.BigEndian.Uint16(header[off : off+2]))
	off += 2
	if off+mlen > len(header) {
		return nil, false
	}
	t.MessageType = string(header[off : off+mlen])
	if len(payload) > 0 {
		t.Payload = append([]byte(nil), payload...)
	}
	return t, true
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// journal mirrors a tube's task set into Pebble. All writes happen under
// the tube mutex, so no internal locking is needed. Failures are logged
// and swallowed; the in-memory state stays authoritative.
type journal struct {
	db     *pebblestore.DB
	name   string
	logger log.Logger
}

func newJournal(db *pebblestore.DB, name string, logger log.Logger) *journal {
	if db == nil {
		return nil
	}
	return &journal{db: db, name: name, logger: logger}
}

func (j *journal) putTask(t *Task) {
	if j == nil {
		return
	}
	if err := j.db.Set(taskKey(j.name, t.ID), encodeTask(t)); err != nil {
		j.logger.Warn("journal write failed", log.Str("tube", j.name), log.Uint64("task", t.ID), log.Err(err))
	}
}

func (j *journal) deleteTask(id uint64) {
	if j == nil {
		return
	}
	if err := j.db.Delete(taskKey(j.name, id)); err != nil {
		j.logger.Warn("journal delete failed", log.Str("tube", j.name), log.Uint64("task", id), log.Err(err))
	}
}

func (j *journal) writeMeta(nextID uint64) {
	if j == nil {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], nextID)
	if err := j.db.Set(metaKey(j.name), b[:]); err != nil {
		j.logger.Warn("journal meta write failed", log.Str("tube", j.name), log.Err(err))
	}
}

// dropAll removes every journal key for the tube, including its meta.
func (j *journal) dropAll() {
	if j == nil {
		return
	}
	prefix := tubePrefix(j.name)
	hi := append(append([]byte{}, prefix...), 0xFF)
	b := j.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(prefix, hi, nil); err != nil {
		j.logger.Warn("journal drop failed", log.Str("tube", j.name), log.Err(err))
		return
	}
	if err := j.db.CommitBatch(b); err != nil {
		j.logger.Warn("journal drop commit failed", log.Str("tube", j.name), log.Err(err))
	}
}

// load reads back the journaled tasks and the persisted id counter.
// Corrupt records are skipped.
func (j *journal) load() ([]*Task, uint64, error) {
	if j == nil {
		return nil, 0, nil
	}
	var nextID uint64
	if meta, err := j.db.Get(metaKey(j.name)); err == nil && len(meta) >= 8 {
		nextID = binary.BigEndian.Uint64(meta[:8])
	} else if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, 0, err
	}

	iter, err := j.db.PrefixIter(taskKeyPrefix(j.name))
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	var tasks []*Task
	for ok := iter.First(); ok; ok = iter.Next() {
		id, ok := taskIDFromKey(j.name, iter.Key())
		if !ok {
			continue
		}
		t, ok := decodeTask(iter.Value())
		if !ok || t.ID != id {
			j.logger.Warn("journal record corrupt, skipping", log.Str("tube", j.name), log.Uint64("task", id))
			continue
		}
		tasks = append(tasks, t)
		if t.ID >= nextID {
			nextID = t.ID + 1
		}
	}
	return tasks, nextID, nil
}
