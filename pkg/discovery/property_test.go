package discovery

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// TestDiscoveryProperties verifies algorithm invariants across randomly
// shaped clusters: any connected seed graph elects exactly one leader,
// and the leader is the node with the lowest address.
func TestDiscoveryProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one leader, lowest address wins", prop.ForAll(
		func(n int, ring bool) bool {
			addrs := make([]string, n)
			for i := range addrs {
				addrs[i] = fmt.Sprintf("node-%03d:7000", i)
			}

			engines := make(map[string]*Engine)
			for i, a := range addrs {
				var seeds PeerList
				if ring {
					// Each node only knows its successor
					seeds = PeerList{{Address: addrs[(i+1)%n]}}
				} else {
					for _, other := range addrs {
						seeds = append(seeds, Peer{Address: other})
					}
				}
				engines[a] = NewEngine(Peer{Address: a, ID: raft.NewServerID()}, seeds)
			}

			var leaders []string
			for round := 0; round < 4*n+10 && len(leaders) == 0; round++ {
				for addr, e := range engines {
					out := e.Tick()
					if out.Terminal != nil {
						if out.Terminal.IsLeader {
							leaders = append(leaders, addr)
						}
						continue
					}
					for _, req := range out.Requests {
						target, ok := engines[req.To.Address]
						if !ok {
							continue
						}
						resp, _, ok := target.Request(req.Peers)
						if !ok {
							continue
						}
						e.Response(req.To, resp)
					}
				}
			}

			return len(leaders) == 1 && leaders[0] == addrs[0]
		},
		gen.IntRange(1, 8),
		gen.Bool(),
	))

	properties.Property("merging peer lists never loses identities", prop.ForAll(
		func(withID []bool) bool {
			e := NewEngine(Peer{Address: "self:7000"}, nil)

			ids := make(map[string]raft.ServerID)
			for i, has := range withID {
				addr := fmt.Sprintf("peer-%03d:7000", i)
				p := Peer{Address: addr}
				if has {
					p.ID = raft.NewServerID()
					ids[addr] = p.ID
				}
				e.Request(PeerList{p})
			}

			// Replay every peer without identity; nothing may be forgotten
			for i := range withID {
				e.Request(PeerList{{Address: fmt.Sprintf("peer-%03d:7000", i)}})
			}

			for _, p := range e.KnownPeers() {
				if want, ok := ids[p.Address]; ok && p.ID != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
