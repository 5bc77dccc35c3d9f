// Package mower implements the cloud-to-private MQTT bridge for robotic
// lawn mowers.
//
// Mowers report to a vendor cloud broker. This package mirrors their status
// onto an operator-controlled broker, relays commands back to the cloud and
// publishes Home Assistant discovery configs so every mower appears as a
// device without manual setup.
//
// # Architecture
//
//	┌──────────────┐  CloudLink   ┌──────────────────┐  PrivateLink  ┌────────────────┐
//	│ Vendor cloud │◄────────────►│ BridgeController │◄─────────────►│ Private broker │
//	│    broker    │              │  (this package)  │               │ (Home Assist.) │
//	└──────────────┘              └──────────────────┘               └────────────────┘
//
// # Topics
//
// Cloud side, per brand prefix (WX, KR, LX, SM):
//
//	{brand}/{serial}/commandOut   status from the mower
//	{brand}/{serial}/commandIn    commands to the mower
//
// Private side, under a namespace (default "mower_mqtt_bridge"):
//
//	{ns}/{brand}/{serial}/commandOut    merged status document
//	{ns}/{brand}/{serial}/state         derived entity values
//	{ns}/{brand}/{serial}/availability  online/offline (retained)
//	{ns}/{brand}/{serial}/commandIn     commands from Home Assistant
//	{ns}/status                         bridge online/offline (LWT)
//	{ns}/health                         bridge health (retained)
//
// Discovery configs go to {prefix}/{component}/{device_id}/{entity}/config.
//
// # Status Merging
//
// Mowers send partial documents. Each update is deep-merged into the
// device's last known state; fields are never removed and explicit nulls
// are ignored:
//
//	state := map[string]any{}
//	update, _ := mower.DecodeStatus([]byte(`{"dat":{"bt":{"p":80}}}`))
//	changes := mower.MergeStatus(state, update) // ["dat.bt.p"]
//
// # Delivery
//
// Every publish is QoS 0. Nothing is queued: a message for a disconnected
// link is dropped with a warning. Both links reconnect on their own with
// exponential backoff; rejected credentials stop the bridge.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package mower
