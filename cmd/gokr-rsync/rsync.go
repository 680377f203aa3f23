// Tool gokr-rsync is an rsync client and --server implementation: run it
// the way you'd run rsync(1), or as the remote command of an ssh-based
// transfer.
package main

import (
	"context"
	"log"
	"os"

	"github.com/oferchen/rsync-sub026/internal/maincmd"
	"github.com/oferchen/rsync-sub026/internal/rsyncos"
)

func main() {
	osenv := &rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	stats, err := maincmd.Main(context.Background(), osenv, os.Args, nil)
	if err != nil {
		log.Fatal(err)
	}
	if stats != nil {
		log.Print(stats)
	}
}
