package raft

import (
	"context"
	"fmt"
	"sync"
)

// InMemCluster is an in-process consensus service shared by a set of
// registries. It serializes configuration-change entries under a single
// mutex the way the real engine serializes them through its log, and can
// inject commit-status-unknown outcomes for retry testing.
type InMemCluster struct {
	mu      sync.Mutex
	groups  map[GroupID]*inmemGroup
	unknown int // upcoming ModifyConfig calls that apply but report unknown
}

type inmemGroup struct {
	config Configuration
}

// NewInMemCluster creates an empty in-process consensus service
func NewInMemCluster() *InMemCluster {
	return &InMemCluster{
		groups: make(map[GroupID]*inmemGroup),
	}
}

// InjectCommitStatusUnknown makes the next n configuration changes apply
// to the group but report ErrCommitStatusUnknown to the submitter
func (c *InMemCluster) InjectCommitStatusUnknown(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unknown = n
}

// HasGroup reports whether the group exists
func (c *InMemCluster) HasGroup(gid GroupID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[gid]
	return ok
}

// GroupConfiguration returns the committed configuration of a group
func (c *InMemCluster) GroupConfiguration(gid GroupID) (Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[gid]
	if !ok {
		return Configuration{}, fmt.Errorf("%w: %s", ErrGroupNotFound, gid)
	}
	return g.config.Clone(), nil
}

func (c *InMemCluster) createGroup(gid GroupID, self Member) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.groups[gid]; ok {
		return fmt.Errorf("%w: %s", ErrGroupExists, gid)
	}
	g := &inmemGroup{config: NewConfiguration()}
	g.config.Members[self.ID] = self
	c.groups[gid] = g
	return nil
}

// apply commits configuration changes. The returned error may be
// ErrCommitStatusUnknown while the changes were in fact applied.
func (c *InMemCluster) apply(gid GroupID, changes []ConfigChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[gid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, gid)
	}
	for _, ch := range changes {
		switch ch.Kind {
		case AddMember:
			g.config.Members[ch.Member.ID] = ch.Member
		case RemoveMember:
			delete(g.config.Members, ch.Member.ID)
		case SetVoter, SetNonvoter:
			m, ok := g.config.Members[ch.Member.ID]
			if !ok {
				continue
			}
			m.Voter = ch.Kind == SetVoter
			g.config.Members[m.ID] = m
		}
	}
	if c.unknown > 0 {
		c.unknown--
		return ErrCommitStatusUnknown
	}
	return nil
}

// inmemServer implements Server against the shared cluster state
type inmemServer struct {
	id      ServerID
	gid     GroupID
	cluster *InMemCluster

	mu     sync.RWMutex
	cached Configuration
}

func (s *inmemServer) ID() ServerID { return s.id }
func (s *inmemServer) Group() GroupID { return s.gid }

func (s *inmemServer) ModifyConfig(ctx context.Context, changes []ConfigChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// A server that is no longer a member cannot find the leader to
	// forward its entry; it blocks until cancelled. This mirrors the
	// engine's behavior that makes a second leave stall.
	cfg, err := s.cluster.GroupConfiguration(s.gid)
	if err != nil {
		return err
	}
	if !cfg.IsMember(s.id, false) {
		<-ctx.Done()
		return fmt.Errorf("%w: %v", ErrNoLeader, ctx.Err())
	}

	if err := s.cluster.apply(s.gid, changes); err != nil {
		return err
	}
	return s.refresh()
}

func (s *inmemServer) ReadBarrier(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.refresh()
}

func (s *inmemServer) refresh() error {
	cfg, err := s.cluster.GroupConfiguration(s.gid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = cfg
	s.mu.Unlock()
	return nil
}

func (s *inmemServer) Configuration() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached.Clone()
}

// InMemRegistry implements Registry for one node against a shared
// InMemCluster. The first server created, joined or started is recorded
// as the group 0 server; this subsystem only ever manages group 0.
type InMemRegistry struct {
	cluster *InMemCluster
	enabled bool

	mu     sync.Mutex
	group0 *inmemServer
}

// NewInMemRegistry creates a registry for one node
func NewInMemRegistry(cluster *InMemCluster, enabled bool) *InMemRegistry {
	return &InMemRegistry{cluster: cluster, enabled: enabled}
}

// IsEnabled reports whether the consensus engine is enabled locally
func (r *InMemRegistry) IsEnabled() bool { return r.enabled }

// CreateGroup creates a new group with self as the sole initial member
func (r *InMemRegistry) CreateGroup(ctx context.Context, gid GroupID, self Member) (Server, error) {
	if !r.enabled {
		return nil, ErrNotEnabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.cluster.createGroup(gid, self); err != nil {
		return nil, err
	}
	return r.attach(gid, self.ID)
}

// JoinGroup starts a server for an existing group and submits an
// AddMember entry for self
func (r *InMemRegistry) JoinGroup(ctx context.Context, gid GroupID, leaderAddr string, self Member) (Server, error) {
	if !r.enabled {
		return nil, ErrNotEnabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = leaderAddr // the in-process engine reaches the leader directly
	if err := r.cluster.apply(gid, []ConfigChange{{Kind: AddMember, Member: self}}); err != nil {
		return nil, err
	}
	return r.attach(gid, self.ID)
}

// StartServer starts a server for a group this node already joined
func (r *InMemRegistry) StartServer(ctx context.Context, gid GroupID, self Member) (Server, error) {
	if !r.enabled {
		return nil, ErrNotEnabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.cluster.HasGroup(gid) {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, gid)
	}
	return r.attach(gid, self.ID)
}

// Group0 returns the running group 0 server
func (r *InMemRegistry) Group0() (Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.group0 == nil {
		return nil, ErrServerNotStarted
	}
	return r.group0, nil
}

func (r *InMemRegistry) attach(gid GroupID, id ServerID) (Server, error) {
	srv := &inmemServer{id: id, gid: gid, cluster: r.cluster}
	if err := srv.refresh(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.group0 == nil {
		r.group0 = srv
	}
	r.mu.Unlock()
	return srv, nil
}
