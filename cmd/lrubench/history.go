package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// runPrefix + 8-byte big-endian unix nanos -> msgpack runRecord.
var runPrefix = []byte("run:")

// runRecord is one finished workload as kept in the history database.
type runRecord struct {
	Time        int64              `msgpack:"time"`
	Command     string             `msgpack:"command"`
	Fingerprint string             `msgpack:"fingerprint"`
	Config      []byte             `msgpack:"config"` // TOML
	Summary     map[string]float64 `msgpack:"summary"`
}

func (r runRecord) String() string {
	keys := make([]string, 0, len(r.Summary))
	for k := range r.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s %s", time.Unix(0, r.Time).UTC().Format(time.RFC3339), r.Command, r.Fingerprint)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%g", k, r.Summary[k])
	}
	return b.String()
}

// fingerprint identifies a workload configuration so runs of the same
// setup can be compared.
func fingerprint(cfg benchConfig) (string, []byte, error) {
	cfg.History = ""
	cfg.Server = serverConfig{}
	enc, err := dumpConfig(&cfg)
	if err != nil {
		return "", nil, err
	}
	sum := blake3.Sum256(enc)
	return hex.EncodeToString(sum[:8]), enc, nil
}

// history stores run records in a pebble database.
type history struct {
	db *pebble.DB
}

func openHistory(dir string) (*history, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	return &history{db: db}, nil
}

func (h *history) Close() error {
	return h.db.Close()
}

func runKey(t int64) []byte {
	key := make([]byte, len(runPrefix)+8)
	copy(key, runPrefix)
	binary.BigEndian.PutUint64(key[len(runPrefix):], uint64(t))
	return key
}

// Add stores rec. Records with an equal timestamp are shifted forward by a
// nanosecond until the key is free.
func (h *history) Add(rec runRecord) error {
	val, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	for {
		_, closer, err := h.db.Get(runKey(rec.Time))
		if err == pebble.ErrNotFound {
			break
		}
		if err != nil {
			return err
		}
		closer.Close()
		rec.Time++
		if val, err = msgpack.Marshal(&rec); err != nil {
			return err
		}
	}
	return h.db.Set(runKey(rec.Time), val, pebble.Sync)
}

// List returns up to limit records, newest first. Empty command or
// fingerprint match everything; limit <= 0 means no limit.
func (h *history) List(command, fp string, limit int) ([]runRecord, error) {
	upper := append([]byte(nil), runPrefix...)
	upper[len(upper)-1]++

	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: runPrefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []runRecord
	for iter.Last(); iter.Valid(); iter.Prev() {
		var rec runRecord
		if err := msgpack.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt record %x: %w", iter.Key(), err)
		}
		if command != "" && rec.Command != command {
			continue
		}
		if fp != "" && rec.Fingerprint != fp {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, iter.Error()
}
