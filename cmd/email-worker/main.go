// Command email-worker runs the email channel's queue consumer and webhook server.
package main

import (
	"log"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/workerrun"
)

const release = "notifab-email-worker"

func main() {
	if err := workerrun.Main(delivery.ChannelEmail, release); err != nil {
		log.Fatalf("email-worker: %v", err)
	}
}
