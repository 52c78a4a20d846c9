package event

import (
	"fmt"

	"github.com/buraksezer/consistent"
	"github.com/spaolacci/murmur3"
)

const partitionCount = 271

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type member string

func (m member) String() string {
	return string(m)
}

// ring maps routing keys onto worker lanes
type ring struct {
	hring *consistent.Consistent
	lanes map[string]int
}

func newRing(name string, workers int) *ring {
	cfg := consistent.Config{
		PartitionCount:    partitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	ret := &ring{lanes: map[string]int{}}
	var members []consistent.Member
	for i := 0; i < workers; i++ {
		m := member(fmt.Sprintf("%s-%d", name, i))
		ret.lanes[m.String()] = i
		members = append(members, m)
	}
	ret.hring = consistent.New(members, cfg)
	return ret
}

func (r *ring) lane(key string) int {
	if len(r.lanes) <= 1 {
		return 0
	}
	return r.lanes[r.hring.LocateKey([]byte(key)).String()]
}
