package tube

import "encoding/binary"

// Key layout:
//   tube/{name}/meta            -> nextID (8B BE)
//   tube/{name}/task/{id 8B BE} -> encoded task record

const keyRoot = "tube/"

func metaKey(name string) []byte {
	return []byte(keyRoot + name + "/meta")
}

func taskKeyPrefix(name string) []byte {
	return []byte(keyRoot + name + "/task/")
}

func taskKey(name string, id uint64) []byte {
	prefix := taskKeyPrefix(name)
	out := make([]byte, 0, len(prefix)+8)
	out = append(out, prefix...)
	var ib [8]byte
	binary.BigEndian.PutUint64(ib[:], id)
	return append(out, ib[:]...)
}

func tubePrefix(name string) []byte {
	return []byte(keyRoot + name + "/")
}

// taskIDFromKey extracts the task id from a task key, returning false for
// keys that are not task keys under the given tube.
func taskIDFromKey(name string, key []byte) (uint64, bool) {
	prefix := taskKeyPrefix(name)
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), true
}
