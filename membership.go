package pocdb

import "strconv"

// N is the fixed cluster size and Quorum the majority needed to commit a
// decree, per spec.md section 1: "a write is committed once a majority
// (three of five) has accepted".
const (
	N      = 5
	Quorum = N/2 + 1
)

// The five replica identifiers, matching original_source/common.h's
// HOSTA..HOSTE constants bit for bit so that a trace captured against
// the reference implementation's ids reads the same way here.
const (
	HostA uint64 = 0xdeadbeef00000000
	HostB uint64 = 0xbad1deaf00000000
	HostC uint64 = 0x1eaff00d00000000
	HostD uint64 = 0xdefec8ed00000000
	HostE uint64 = 0xcafebabe00000000
)

// Hosts lists the five replica identifiers in a fixed order; their index
// in this slice is also their index into the port range (127.0.0.1:2000+i).
var Hosts = [N]uint64{HostA, HostB, HostC, HostD, HostE}

// ReplicaLetters maps the CLI argument letters A..E to their Hosts index.
var ReplicaLetters = map[string]int{
	"A": 0,
	"B": 1,
	"C": 2,
	"D": 3,
	"E": 4,
}

// BasePort is the port the first replica (index 0, HostA) listens on;
// replica i listens on BasePort+i.
const BasePort = 2000

// Membership is the hard-coded (id, host, port) table spec.md section 6
// calls for. A production fork should externalize this into a config
// file or flag; the wire protocol and algorithm are unaffected either
// way.
type Membership struct {
	Addrs map[uint64]string // peer id -> "host:port"
}

// DefaultMembership returns the fixed five-replica table listening on
// 127.0.0.1:2000..2004.
func DefaultMembership() Membership {
	return MembershipWithBasePort(BasePort)
}

// MembershipWithBasePort returns the fixed five-replica table listening on
// 127.0.0.1:basePort..basePort+4, letting a caller shift the whole port
// range (e.g. to run more than one cluster on one host) without touching
// the hard-coded host identifiers.
func MembershipWithBasePort(basePort int) Membership {
	m := Membership{Addrs: make(map[uint64]string, N)}
	for i, id := range Hosts {
		m.Addrs[id] = addrFor(basePort + i)
	}
	return m
}

func addrFor(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
