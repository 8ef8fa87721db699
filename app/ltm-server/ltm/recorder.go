package ltm

import (
	"encoding/json"
	"fmt"
	logger "log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/openrailtools/railcast/business/data/ledwire"
	"github.com/openrailtools/railcast/business/data/transitions"
)

//tickRecorder receives the results of a completed cycle
type tickRecorder interface {
	recordTickResults(networkID string, outputs []*ledwire.Output, changes []*transitions.BlockTransition)
}

//rtRecorder writes block transitions to the database and publishes LED
//outputs over nats, when either is configured
type rtRecorder struct {
	log              *logger.Logger
	db               *sqlx.DB
	natsConnection   *nats.Conn
	recordToDatabase bool
	publishOverNats  bool
}

func makeRTRecorder(log *logger.Logger, db *sqlx.DB, natsConnection *nats.Conn) *rtRecorder {
	return &rtRecorder{
		log:              log,
		db:               db,
		natsConnection:   natsConnection,
		recordToDatabase: db != nil,
		publishOverNats:  natsConnection != nil,
	}
}

//recordTickResults persists and publishes what a cycle produced. Failures
//are logged and never fail the cycle that produced them.
func (r *rtRecorder) recordTickResults(networkID string, outputs []*ledwire.Output, changes []*transitions.BlockTransition) {
	if r.recordToDatabase && len(changes) > 0 {
		if err := transitions.RecordBlockTransitions(changes, r.db); err != nil {
			r.log.Printf("error recording %d block transitions for %s. error:%v\n",
				len(changes), networkID, err)
		}
	}
	if r.publishOverNats {
		subject := fmt.Sprintf("ltm.%s.led-updates", strings.ToLower(networkID))
		for _, output := range outputs {
			data, err := json.Marshal(output)
			if err != nil {
				r.log.Printf("error marshaling %s output for %s. error:%v\n",
					output.Version, networkID, err)
				continue
			}
			if err := r.natsConnection.Publish(subject, data); err != nil {
				r.log.Printf("error publishing %s output on %s. error:%v\n",
					output.Version, subject, err)
			}
		}
	}
}
