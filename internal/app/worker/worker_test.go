package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/payment-service/internal/config"
)

func TestTopology_MergesBrokerAndWorkerQueues(t *testing.T) {
	cfg := &config.Config{
		Broker: config.Broker{Exchange: "tasks", Queues: []string{"default", "mail"}},
		Worker: config.Worker{Queues: []string{"mail", "reports"}},
	}

	topo := Topology(cfg)

	assert.Equal(t, "tasks", topo.Exchange)
	assert.Equal(t, []string{"default", "mail", "reports"}, topo.Queues)
}

func TestTopology_Defaults(t *testing.T) {
	topo := Topology(&config.Config{})

	assert.Equal(t, "tasks", topo.Exchange)
	assert.Equal(t, []string{"default"}, topo.Queues)
}
