package monitor

import (
	"time"

	"github.com/nadim/fieldsync/internal/syncclient"
)

// activityLimit caps how many batch records the activity panel fetches.
const activityLimit = 50

// FetchData retrieves all data needed for the monitor display.
func FetchData(client *syncclient.Client) RefreshDataMsg {
	msg := RefreshDataMsg{
		Timestamp: time.Now(),
	}

	status, err := client.Status()
	if err != nil {
		msg.Err = err
		return msg
	}
	msg.Status = status

	// Batch history beyond what /v1/status embeds
	if batches, err := client.RecentBatches("", activityLimit); err == nil {
		msg.Batches = batches
	} else {
		msg.Batches = status.Batches
	}

	// Pending appeals need a supervisor's attention
	if appeals, err := client.ListAppeals("pending"); err == nil {
		msg.Appeals = appeals
	}

	return msg
}
