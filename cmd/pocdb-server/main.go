// Command pocdb-server runs one replica of a five-member pocdb cluster.
//
// Grounded on original_source/pocdb.cc's main()/pocdaemon::run(): argv[1]
// selects which of the five fixed hosts this process is (A through E),
// a durable store is opened in the current directory, signals trigger a
// clean shutdown, and the daemon then loops forever dispatching wire
// messages.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/deadbeef-labs/pocdb"
	"github.com/deadbeef-labs/pocdb/storage"
	"github.com/deadbeef-labs/pocdb/transport"
)

func main() {
	dataDir := flag.String("data-dir", ".", "directory for this replica's durable store")
	basePort := flag.Int("base-port", pocdb.BasePort, "base TCP port; replica i listens on base-port+i")
	listenAddr := flag.String("listen", "", "override this replica's own listen address (host:port); default derived from -base-port")
	peersOverride := flag.String("peers", "", "comma-separated LETTER=host:port overrides for the membership table, e.g. A=10.0.0.1:2000,B=10.0.0.2:2000")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		log.Fatalf("usage: pocdb-server <A|B|C|D|E>")
	}

	idx, ok := pocdb.ReplicaLetters[args[0]]
	if !ok {
		log.Fatalf("unknown replica letter %q: must be one of A, B, C, D, E", args[0])
	}
	selfID := pocdb.Hosts[idx]
	membership := pocdb.MembershipWithBasePort(*basePort)

	if *peersOverride != "" {
		for _, pair := range strings.Split(*peersOverride, ",") {
			letter, addr, ok := strings.Cut(pair, "=")
			if !ok {
				log.Fatalf("invalid -peers entry %q: want LETTER=host:port", pair)
			}
			pidx, ok := pocdb.ReplicaLetters[letter]
			if !ok {
				log.Fatalf("invalid -peers entry %q: unknown replica letter %q", pair, letter)
			}
			membership.Addrs[pocdb.Hosts[pidx]] = addr
		}
	}

	listenOn := membership.Addrs[selfID]
	if *listenAddr != "" {
		listenOn = *listenAddr
	}

	peers := make([]uint64, 0, pocdb.N)
	for _, id := range pocdb.Hosts {
		peers = append(peers, id)
	}

	storePath := *dataDir + "/pocdb." + args[0] + ".log"
	store, err := storage.OpenFileStore(storePath)
	if err != nil {
		log.Fatalf("open store %q: %v", storePath, err)
	}
	defer store.Close()

	trans, err := transport.NewTCPTransport(selfID, listenOn, membership.Addrs)
	if err != nil {
		log.Fatalf("listen on %q: %v", listenOn, err)
	}
	defer trans.Close()

	replica := pocdb.NewReplica(selfID, peers, store, trans)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go func() {
		s := <-sig
		log.Printf("pocdb-server: received %v, shutting down", s)
		replica.Stop()
	}()

	log.Printf("pocdb-server: replica %s listening on %s", args[0], listenOn)
	replica.Run()
}
