package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icxcommander/icxcommander/internal/inventory"
)

const lldpDetailOutput = `LLDP neighbors detail

Local port: 1/1/7
  Chassis ID (MAC address): 609c.9f1e.bbbb
  Port ID (MAC address): 609c.9f1e.bbbc
  Time to live: 101 seconds
  System name         : "ICX7150-24P Switch"
  System description  : "Ruckus Wireless, Inc. ICX7150-24P, IronWare Version 09.0.10d"
  Management address (IPv4): 0.0.0.0
  Port description    : "GigabitEthernet1/1/1"

Local port: 1/1/12
  Chassis ID (MAC address): 34fa.9f12.cd00
  Port ID (MAC address): 34fa.9f12.cd01
  Time to live: 117 seconds
  System name         : "RuckusAP"
  System description  : "Ruckus R350 Multimedia Hotzone Wireless AP/SW Version: 6.2.1.0.1163"
  Management address (IPv4): 10.20.30.41

Local port: 1/1/20
  Chassis ID (MAC address): 0050.56ab.1234
  Port ID (Interface name): eth0
  System name         : "office-printer"
  System description  : "Laser printer"
`

func TestParseNeighbors(t *testing.T) {
	neighbors := ParseNeighbors(lldpDetailOutput)
	require.Len(t, neighbors, 3)

	sw := neighbors[0]
	assert.Equal(t, "1/1/7", sw.LocalPort)
	assert.Equal(t, "609c.9f1e.bbbb", sw.ChassisID)
	assert.Equal(t, inventory.NeighborSwitch, sw.Type)
	assert.Equal(t, "0.0.0.0", sw.ManagementAddress)
	assert.False(t, sw.HasManagementAddress())

	ap := neighbors[1]
	assert.Equal(t, "1/1/12", ap.LocalPort)
	assert.Equal(t, inventory.NeighborAP, ap.Type)
	assert.Equal(t, "R350", ap.APModel)
	assert.Equal(t, "10.20.30.41", ap.ManagementAddress)
	assert.True(t, ap.HasManagementAddress())

	other := neighbors[2]
	assert.Equal(t, inventory.NeighborUnknown, other.Type)
}

func TestParseNeighborsEmptyOutput(t *testing.T) {
	assert.Empty(t, ParseNeighbors(""))
	assert.Empty(t, ParseNeighbors("No LLDP neighbors"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want inventory.NeighborType
	}{
		{"ICX7150-24P Switch", "", inventory.NeighborSwitch},
		{"core-sw-1", "Ruckus Wireless, Inc. ICX7450-48", inventory.NeighborSwitch},
		{"RuckusAP", "", inventory.NeighborAP},
		{"AP-Lobby", "", inventory.NeighborAP},
		{"lobby-wap", "Ruckus R550 Indoor Access Point", inventory.NeighborAP},
		{"something", "Ruckus T310 outdoor unit", inventory.NeighborAP},
		{"office-printer", "Laser printer", inventory.NeighborUnknown},
		{"", "", inventory.NeighborUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.name, tt.desc), "name=%q desc=%q", tt.name, tt.desc)
	}
}

func TestParseAPModel(t *testing.T) {
	assert.Equal(t, "R350", ParseAPModel("Ruckus R350 Multimedia Hotzone Wireless AP/SW Version: 6.2.1.0.1163"))
	assert.Equal(t, "R550", ParseAPModel("Ruckus R550 Indoor Access Point"))
	assert.Equal(t, "T310", ParseAPModel("Ruckus T310 outdoor unit"))
	assert.Equal(t, "", ParseAPModel("no model here"))
}
