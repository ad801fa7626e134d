// Package sysstore is the node-local durable store for bootstrap state:
// this node's consensus identity, the peers learned during discovery,
// the group 0 id once joined, and the upgrade phase. Records are
// append-only snappy-compressed JSON frames replayed at open, so any
// crash re-reads the last written state.
package sysstore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

const storeFileName = "system.log"

// Record kinds
const (
	kindIdentity     = "identity"
	kindPeer         = "peer"
	kindGroup0ID     = "group0_id"
	kindUpgradePhase = "upgrade_phase"
)

// Peer is a persisted discovery peer. Address is the key; the server id
// is attached once learned and never forgotten afterwards.
type Peer struct {
	Address  string        `json:"address"`
	ServerID raft.ServerID `json:"server_id,omitempty"`
}

type record struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// Store is the durable system store for one node. All methods are safe
// for concurrent use; writes are flushed and synced before returning.
type Store struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool

	identity raft.ServerID
	peers    map[string]Peer
	group0ID raft.GroupID
	phase    string
}

// Open opens (or creates) the system store in dataDir and replays the
// record log into memory.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(dataDir, storeFileName)

	s := &Store{
		peers: make(map[string]Peer),
	}
	if err := s.replay(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open system store: %w", err)
	}
	s.file = file
	s.writer = bufio.NewWriter(file)

	return s, nil
}

// Close flushes and closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *Store) replay(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		rec, err := readFrame(reader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		s.applyRecord(rec)
	}
}

func (s *Store) applyRecord(rec *record) {
	switch rec.Kind {
	case kindIdentity:
		var id raft.ServerID
		if json.Unmarshal(rec.Value, &id) == nil {
			s.identity = id
		}
	case kindPeer:
		var p Peer
		if json.Unmarshal(rec.Value, &p) == nil {
			s.mergePeer(p)
		}
	case kindGroup0ID:
		var gid raft.GroupID
		if json.Unmarshal(rec.Value, &gid) == nil {
			s.group0ID = gid
		}
	case kindUpgradePhase:
		var phase string
		if json.Unmarshal(rec.Value, &phase) == nil {
			s.phase = phase
		}
	}
}

// mergePeer upserts keyed by address. A known server id takes precedence
// over an empty one so a confirmed peer does not get forgotten.
func (s *Store) mergePeer(p Peer) {
	if existing, ok := s.peers[p.Address]; ok && p.ServerID == "" {
		p.ServerID = existing.ServerID
	}
	s.peers[p.Address] = p
}

// appendRecord writes, flushes and syncs a single record frame.
// Frame format: [DataLen:4][Checksum:4][Data:N], data snappy-compressed.
func (s *Store) appendRecord(kind string, value any) error {
	if s.closed {
		return ErrStoreClosed
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data, err := json.Marshal(record{Kind: kind, Value: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	if err := binary.Write(s.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if err := binary.Write(s.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	if _, err := s.writer.Write(compressed); err != nil {
		return err
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush system store: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync system store: %w", err)
	}

	return nil
}

func readFrame(reader *bufio.Reader) (*record, error) {
	var dataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
		return nil, err
	}

	var checksum uint32
	if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: truncated frame header", ErrCorruptRecord)
		}
		return nil, err
	}

	compressed := make([]byte, dataLen)
	if _, err := io.ReadFull(reader, compressed); err != nil {
		return nil, fmt.Errorf("%w: truncated frame body", ErrCorruptRecord)
	}

	if crc32.ChecksumIEEE(compressed) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	rec := &record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}
