package ltm

import (
	"context"
	"fmt"
	logger "log"
	"sync"
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/foundation/httpclient"
)

const fetchTimeout = 15 * time.Second

//fetcher retrieves and decodes every realtime feed of one network
type fetcher struct {
	log     *logger.Logger
	config  GTFSRealtimeAPIConfig
	headers map[string]string
}

//makeFetcher creates a fetcher with the request headers the feed requires
func makeFetcher(log *logger.Logger, config GTFSRealtimeAPIConfig, apiKey string) *fetcher {
	headers := make(map[string]string)
	if config.KeyHeader != "" && apiKey != "" {
		headers[config.KeyHeader] = apiKey
	}
	if config.Protocol == "protobuf" {
		headers["Accept"] = "application/x-protobuf"
	} else {
		headers["Accept"] = "application/json"
	}
	return &fetcher{
		log:     log,
		config:  config,
		headers: headers,
	}
}

//fetchPositions retrieves every position feed concurrently and returns the
//combined entity list. Failed urls are logged and skipped so one bad feed
//never aborts a cycle, but an error is returned when no feed came back at
//all since the cycle then has nothing to work with.
func (f *fetcher) fetchPositions(ctx context.Context) ([]*gtfsrt.Entity, error) {
	feeds := f.fetchAll(ctx, f.config.URL)
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no position feed could be fetched from %d configured urls", len(f.config.URL))
	}
	var entities []*gtfsrt.Entity
	for _, feed := range feeds {
		entities = append(entities, feed.Entity...)
	}
	return entities, nil
}

//fetchTripUpdates retrieves the optional trip feeds and indexes the trip
//updates they carry by entity id
func (f *fetcher) fetchTripUpdates(ctx context.Context) map[string]*gtfsrt.TripUpdate {
	if len(f.config.TripsURL) == 0 {
		return nil
	}
	updates := make(map[string]*gtfsrt.TripUpdate)
	for _, feed := range f.fetchAll(ctx, f.config.TripsURL) {
		for _, entity := range feed.Entity {
			if entity.TripUpdate != nil {
				updates[entity.ID] = entity.TripUpdate
			}
		}
	}
	return updates
}

//fetchAll issues one GET per url and waits for all of them to finish
func (f *fetcher) fetchAll(ctx context.Context, urls []string) []*gtfsrt.FeedMessage {
	var mu sync.Mutex
	var feeds []*gtfsrt.FeedMessage
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			feed, err := f.fetchFeed(ctx, url)
			if err != nil {
				f.log.Printf("error fetching feed %s. error:%v\n", url, err)
				return
			}
			mu.Lock()
			feeds = append(feeds, feed)
			mu.Unlock()
		}(url)
	}
	wg.Wait()
	return feeds
}

func (f *fetcher) fetchFeed(ctx context.Context, url string) (*gtfsrt.FeedMessage, error) {
	requestCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	body, err := httpclient.GetBytes(requestCtx, f.log, url, f.headers)
	if err != nil {
		return nil, err
	}
	if f.config.Protocol == "protobuf" {
		return gtfsrt.DecodeProtobuf(body)
	}
	return gtfsrt.DecodeJSON(body, f.config.Format)
}

//mergeTripUpdates copies each trip update's stop time updates onto the
//position entity with the same entity id, replacing any list already there
func mergeTripUpdates(positions []*gtfsrt.Entity, updates map[string]*gtfsrt.TripUpdate) {
	if len(updates) == 0 {
		return
	}
	for _, entity := range positions {
		if update, present := updates[entity.ID]; present {
			entity.TripUpdate = update
		}
	}
}
