// Command push-worker runs the push channel's queue consumer and webhook server.
package main

import (
	"log"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/workerrun"
)

const release = "notifab-push-worker"

func main() {
	if err := workerrun.Main(delivery.ChannelPush, release); err != nil {
		log.Fatalf("push-worker: %v", err)
	}
}
