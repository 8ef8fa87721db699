// Package ltm runs the live train map middleware: it ingests GTFS-realtime
// feeds per rail network, tracks trains through geographic track blocks and
// publishes compact LED board payloads.
package ltm

import (
	"fmt"
	logger "log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
)

//StartServices brings up the update loop of every discovered network and the
//web service, then blocks until the shutdown signal arrives
func StartServices(log *logger.Logger,
	httpPort int,
	networksDir string,
	cacheDir string,
	db *sqlx.DB,
	natsConn *nats.Conn,
	shutdownSignal chan os.Signal) error {

	networks, err := DiscoverNetworks(log, networksDir, cacheDir, db, natsConn)
	if err != nil {
		return err
	}

	wg := sync.WaitGroup{}

	//create shutdown channels
	webServiceShutdown := make(chan bool, 1)
	loopShutdowns := make([]chan bool, 0, len(networks))

	//start all network loops and the web service
	for _, network := range networks {
		loopShutdown := make(chan bool, 1)
		loopShutdowns = append(loopShutdowns, loopShutdown)
		go network.runUpdateLoop(&wg, loopShutdown)
	}
	go runWebService(log, &wg, networks, httpPort, webServiceShutdown)

	select {
	case <-shutdownSignal:
		log.Printf("Exiting on shutdown signal, shutting down network loops")
		for _, loopShutdown := range loopShutdowns {
			loopShutdown <- true
		}
		webServiceShutdown <- true
		wg.Wait()
		log.Printf("Network loops shut down, exiting live train map service")
	}
	return nil
}

//DiscoverNetworks loads a Network from every subdirectory of networksDir.
//A directory that fails to load is skipped with a loud log line, an error
//comes back only when nothing loads at all.
func DiscoverNetworks(log *logger.Logger, networksDir, cacheDir string,
	db *sqlx.DB, natsConn *nats.Conn) ([]*Network, error) {

	entries, err := os.ReadDir(networksDir)
	if err != nil {
		return nil, fmt.Errorf("unable to read networks directory %s: %w", networksDir, err)
	}

	recorder := makeRTRecorder(log, db, natsConn)

	var networks []*Network
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		network, err := makeNetwork(log, entry.Name(),
			filepath.Join(networksDir, entry.Name()), cacheDir, recorder)
		if err != nil {
			log.Printf("error loading network %s, skipping. error:%v\n", entry.Name(), err)
			continue
		}
		networks = append(networks, network)
	}
	if len(networks) == 0 {
		return nil, fmt.Errorf("no networks could be loaded from %s", networksDir)
	}
	return networks, nil
}
