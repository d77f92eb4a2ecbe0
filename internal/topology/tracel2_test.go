package topology

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const traceShowOutput = `Vlan 1 L2 topology probed, # of ports: 2
Hop Port    MAC             IP
1   1/1/7   609c.9f1e.bbbb  10.0.0.7
2   1/1/9   609c.9f1e.cccc  0.0.0.0
`

// scriptedRunner replays canned command output and records what ran
type scriptedRunner struct {
	replies map[string][]string // command -> successive outputs
	calls   []string
}

func (r *scriptedRunner) Run(command string, _ time.Duration) (string, error) {
	r.calls = append(r.calls, command)
	outputs, ok := r.replies[command]
	if !ok || len(outputs) == 0 {
		return "", fmt.Errorf("unscripted command %q", command)
	}
	out := outputs[0]
	if len(outputs) > 1 {
		r.replies[command] = outputs[1:]
	}
	return out, nil
}

func testDiscoverer() *Discoverer {
	return NewDiscoverer(Options{
		TraceAttempts:  2,
		TraceDelay:     time.Millisecond,
		CommandTimeout: time.Second,
	}, zap.NewNop())
}

func TestParseTrace(t *testing.T) {
	hops := ParseTrace(traceShowOutput)
	require.Len(t, hops, 2)

	assert.Equal(t, Hop{Port: "1/1/7", MAC: "609c.9f1e.bbbb", IP: "10.0.0.7"}, hops[0])
	assert.Equal(t, Hop{Port: "1/1/9", MAC: "609c.9f1e.cccc", IP: "0.0.0.0"}, hops[1])
}

func TestParseTraceEmpty(t *testing.T) {
	assert.Empty(t, ParseTrace("trace still in progress"))
}

func TestDiscoverNeighborsResolvesViaTrace(t *testing.T) {
	runner := &scriptedRunner{replies: map[string][]string{
		"show lldp neighbors detail": {lldpDetailOutput},
		"trace-l2 vlan 1":            {""},
		"trace-l2 show":              {traceShowOutput},
	}}

	neighbors, err := testDiscoverer().DiscoverNeighbors(runner, "10.0.0.5")
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	// The switch on 1/1/7 advertised 0.0.0.0; the trace fills it in
	assert.Equal(t, "10.0.0.7", neighbors[0].ManagementAddress)
	assert.Contains(t, runner.calls, "trace-l2 vlan 1")
	assert.Contains(t, runner.calls, "trace-l2 show")
}

func TestDiscoverNeighborsSkipsTraceWhenResolved(t *testing.T) {
	resolved := `Local port: 1/1/7
  Chassis ID (MAC address): 609c.9f1e.bbbb
  System name         : "ICX7150-24P Switch"
  Management address (IPv4): 10.0.0.7
`
	runner := &scriptedRunner{replies: map[string][]string{
		"show lldp neighbors detail": {resolved},
	}}

	neighbors, err := testDiscoverer().DiscoverNeighbors(runner, "10.0.0.5")
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, []string{"show lldp neighbors detail"}, runner.calls)
}

func TestDiscoverNeighborsRetriesSlowTrace(t *testing.T) {
	runner := &scriptedRunner{replies: map[string][]string{
		"show lldp neighbors detail": {lldpDetailOutput},
		"trace-l2 vlan 1":            {""},
		"trace-l2 show":              {"probe still running", traceShowOutput},
	}}

	neighbors, err := testDiscoverer().DiscoverNeighbors(runner, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", neighbors[0].ManagementAddress)
}

func TestDiscoverNeighborsTraceFailureIsSoft(t *testing.T) {
	runner := &scriptedRunner{replies: map[string][]string{
		"show lldp neighbors detail": {lldpDetailOutput},
		// trace-l2 commands are unscripted and will error
	}}

	neighbors, err := testDiscoverer().DiscoverNeighbors(runner, "10.0.0.5")
	require.NoError(t, err, "LLDP data alone is still a usable result")
	require.Len(t, neighbors, 3)
	assert.False(t, neighbors[0].HasManagementAddress())
}
