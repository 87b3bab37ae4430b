package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// Flag structs decouple cobra from logic for testing.

type ServeFlags struct {
	ConfigPath string
	Listen     string // overrides [server].listen when set
}

type ReplayFlags struct {
	ConfigPath string
	Input      string // JSONL file, "-" for stdin
	All        bool   // print every event, not only classifications
}

type CheckConfigFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
