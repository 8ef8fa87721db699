// Package transitions records observed track block movements to a database
// for later inspection
package transitions

import (
	"time"

	"github.com/jmoiron/sqlx"
)

//BlockTransition contains details when a tracked train is observed to have
//moved between two track blocks, one row per LED update published
type BlockTransition struct {
	//NetworkID is the rail network the movement was observed on
	NetworkID string `db:"network_id" json:"networkId"`
	//TrainID is the vehicle id of the tracked train
	TrainID string `db:"train_id" json:"trainId"`
	RouteID string `db:"route_id" json:"routeId"`
	//PreviousBlock is the block the train moved from, 0 when unknown
	PreviousBlock int `db:"previous_block" json:"previousBlock"`
	//CurrentBlock is the block the train moved to
	CurrentBlock int `db:"current_block" json:"currentBlock"`
	ColorID      int `db:"color_id" json:"colorId"`
	//ObservedTime is the trains own position report time
	ObservedTime time.Time `db:"observed_time" json:"observedTime"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// RecordBlockTransitions saves a slice of BlockTransition into the database
// in one batch
func RecordBlockTransitions(transitions []*BlockTransition, db *sqlx.DB) error {
	if len(transitions) == 0 {
		return nil
	}
	now := time.Now()
	for _, transition := range transitions {
		transition.CreatedAt = now
	}

	statementString := "insert into block_transition " +
		"(network_id, " +
		"train_id, " +
		"route_id, " +
		"previous_block, " +
		"current_block, " +
		"color_id, " +
		"observed_time, " +
		"created_at) " +
		"values " +
		"(:network_id, " +
		":train_id, " +
		":route_id, " +
		":previous_block, " +
		":current_block, " +
		":color_id, " +
		":observed_time, " +
		":created_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, transitions)
	return err
}
