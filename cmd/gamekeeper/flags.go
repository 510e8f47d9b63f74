package main

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	Dir        string // server working directory
	ConfigPath string // settings file; empty derives from Dir
}

type RunFlags struct {
	Global    GlobalFlags
	AutoStart bool // start the server immediately, overriding config
	NoColor   bool
}

type BackupFlags struct {
	Global  GlobalFlags
	MaxKeep int // archives to retain; 0 uses config
}

type HistoryFlags struct {
	Global GlobalFlags
	Limit  int
}
