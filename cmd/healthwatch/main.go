package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollio/internal/client"
)

// healthwatch tails the server health endpoint and, when a websocket URL is
// given, folds the live channel state into the report.
func main() {
	healthURL := flag.String("health", "http://localhost:8080/health", "health endpoint to probe")
	wsURL := flag.String("ws", "", "optional websocket URL to hold open while watching")
	flag.Parse()

	monitor := client.NewHealthMonitor(*healthURL)
	monitor.OnChange(func(snap client.HealthSnapshot) {
		if snap.Err != nil {
			log.Printf("[%s] %s (%v)", snap.Status, snap.LastCheck.Format(time.RFC3339), snap.Err)
			return
		}
		log.Printf("[%s] %s rooms=%d players=%d uptime=%.0fs env=%s",
			snap.Status, snap.LastCheck.Format(time.RFC3339),
			snap.ActiveRooms, snap.TotalPlayers, snap.Uptime, snap.Environment)
	})

	if *wsURL != "" {
		rc := client.NewRoomClient()
		ch, err := client.DialChannel(*wsURL, client.Handlers{rc, monitor})
		if err != nil {
			log.Printf("channel unavailable, probing health only: %v", err)
		} else {
			rc.Attach(ch)
			defer ch.Close()
		}
	}

	monitor.Start()
	defer monitor.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("watch stopped")
}
