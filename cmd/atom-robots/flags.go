package main

import "time"

// Flag structs decouple cobra from logic for testing.

type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type StartFlags struct {
	APIFlags
	StartNumber int
}

type StopFlags struct {
	APIFlags
	PID int
}

type StatsFlags struct {
	APIFlags
	Offset  int
	Limit   int
	OrderBy string
}

type RobotFlags struct {
	Count    string
	Interval time.Duration
	DSN      string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
