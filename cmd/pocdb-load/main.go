// Command pocdb-load reads "key value" lines from stdin and Puts each
// one into the cluster, aborting on the first failure.
//
// Grounded on original_source/load.cc, which does the same against the
// C client library; this just swaps pocdb_create()/pocdb_put() for a
// pocdb.Client dialed over TCP against the fixed membership table.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/deadbeef-labs/pocdb"
	"github.com/deadbeef-labs/pocdb/transport"
)

func main() {
	membership := pocdb.DefaultMembership()
	peers := make([]uint64, 0, pocdb.N)
	for _, id := range pocdb.Hosts {
		peers = append(peers, id)
	}

	const clientID = uint64(0x1337beef00000000)
	trans, err := transport.NewTCPTransport(clientID, "127.0.0.1:0", membership.Addrs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pocdb-load: %v\n", err)
		os.Exit(1)
	}
	defer trans.Close()

	client := pocdb.NewClient(clientID, peers, trans)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			fmt.Fprintln(os.Stderr, "invalid line")
			os.Exit(1)
		}
		key, val := line[:sp], line[sp+1:]

		if err := client.Put([]byte(key), []byte(val)); err != nil {
			fmt.Fprintf(os.Stderr, "write failure: %v\n", err)
			os.Exit(1)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "pocdb-load: %v\n", err)
		os.Exit(1)
	}
}
