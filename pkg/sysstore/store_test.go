package sysstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	require.NoError(t, err)
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := openStore(t, dir)
	_, ok := s.LoadIdentity()
	assert.False(t, ok, "fresh store should have no identity")

	id := raft.NewServerID()
	require.NoError(t, s.SaveIdentity(id))
	require.NoError(t, s.Close())

	// Survives reopen
	s = openStore(t, dir)
	defer s.Close()

	got, ok := s.LoadIdentity()
	require.True(t, ok)
	assert.Equal(t, id, got)

	// Same identity again is fine, a different one is not
	assert.NoError(t, s.SaveIdentity(id))
	assert.ErrorIs(t, s.SaveIdentity(raft.NewServerID()), ErrIdentityMismatch)
}

func TestGroup0IDWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	gid := raft.NewGroupID()
	require.NoError(t, s.SaveGroup0ID(gid))

	// Idempotent for the same value
	assert.NoError(t, s.SaveGroup0ID(gid))

	// Never overwritten with a different value
	assert.ErrorIs(t, s.SaveGroup0ID(raft.NewGroupID()), ErrGroup0IDMismatch)
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()

	got, ok := s.LoadGroup0ID()
	require.True(t, ok)
	assert.Equal(t, gid, got)
	assert.ErrorIs(t, s.SaveGroup0ID(raft.NewGroupID()), ErrGroup0IDMismatch)
}

func TestPeerPersistenceAndMerge(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	id := raft.NewServerID()
	require.NoError(t, s.SavePeer(Peer{Address: "10.0.0.1:7000"}))
	require.NoError(t, s.SavePeer(Peer{Address: "10.0.0.2:7000", ServerID: id}))

	// A later record without an identity must not drop the known one
	require.NoError(t, s.SavePeer(Peer{Address: "10.0.0.2:7000"}))

	require.NoError(t, s.Close())
	s = openStore(t, dir)
	defer s.Close()

	peers := s.Peers()
	require.Len(t, peers, 2)

	byAddr := make(map[string]Peer)
	for _, p := range peers {
		byAddr[p.Address] = p
	}
	assert.Equal(t, id, byAddr["10.0.0.2:7000"].ServerID, "confirmed identity must survive")
	assert.Empty(t, byAddr["10.0.0.1:7000"].ServerID)
}

func TestPeerIdentityLearnedLater(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	defer s.Close()

	require.NoError(t, s.SavePeer(Peer{Address: "10.0.0.3:7000"}))

	id := raft.NewServerID()
	require.NoError(t, s.SavePeer(Peer{Address: "10.0.0.3:7000", ServerID: id}))

	peers := s.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, id, peers[0].ServerID)
}

func TestInvalidPeer(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	assert.ErrorIs(t, s.SavePeer(Peer{}), ErrInvalidPeer)
}

func TestUpgradePhaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	assert.Empty(t, s.LoadUpgradePhase())

	require.NoError(t, s.SaveUpgradePhase("creating_group0"))
	require.NoError(t, s.SaveUpgradePhase("migrating_metadata"))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	assert.Equal(t, "migrating_metadata", s.LoadUpgradePhase())
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := openStore(t, t.TempDir())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SaveIdentity(raft.NewServerID()), ErrStoreClosed)
	// Double close is fine
	assert.NoError(t, s.Close())
}
