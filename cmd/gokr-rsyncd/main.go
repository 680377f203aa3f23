// Tool gokr-rsyncd runs a standalone rsync daemon, binding a TCP listener
// directly instead of being spawned per-connection by inetd or sshd.
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
	args := append([]string{os.Args[0], "--daemon"}, os.Args[1:]...)
	if _, err := maincmd.Main(context.Background(), osenv, args, nil); err != nil {
		log.Fatal(err)
	}
}
