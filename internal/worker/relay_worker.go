package worker

import (
	"github.com/spec-kit/triage-ledger/internal/service"
)

// StartRelayWorker registers the event relay handlers.
func StartRelayWorker(relay *service.RelayService) {
	if relay == nil {
		return
	}
	relay.RegisterHandlers()
}
