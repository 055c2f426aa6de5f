package models

import "time"

// WOLConfig wakes the machine that serves the history tree before a run.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	WaitPath      string        // directory that must become reachable, defaults to the history root
	Timeout       time.Duration // max time to wait for WaitPath
	PollInterval  time.Duration // how often to check WaitPath
	StabilizeWait time.Duration // wait after WaitPath appears
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
