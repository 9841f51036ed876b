package model

type ConnectionStatus string

const (
	ConnectionStatusInitializing  ConnectionStatus = "initializing"
	ConnectionStatusConnecting    ConnectionStatus = "connecting"
	ConnectionStatusConnected     ConnectionStatus = "connected"
	ConnectionStatusRoomLocked    ConnectionStatus = "room_locked"
	ConnectionStatusKnocking      ConnectionStatus = "knocking"
	ConnectionStatusKnockRejected ConnectionStatus = "knock_rejected"
	ConnectionStatusDisconnecting ConnectionStatus = "disconnecting"
	ConnectionStatusDisconnected  ConnectionStatus = "disconnected"
)

type SignalStatus string

const (
	SignalStatusNone         SignalStatus = ""
	SignalStatusConnecting   SignalStatus = "connecting"
	SignalStatusConnected    SignalStatus = "connected"
	SignalStatusDisconnected SignalStatus = "disconnected"
)

type RTCStatus string

const (
	RTCStatusInactive     RTCStatus = ""
	RTCStatusReady        RTCStatus = "ready"
	RTCStatusDisconnected RTCStatus = "disconnected"
)

type CloudRecordingStatus string

const (
	CloudRecordingIdle      CloudRecordingStatus = "idle"
	CloudRecordingRequested CloudRecordingStatus = "requested"
	CloudRecordingRecording CloudRecordingStatus = "recording"
	CloudRecordingError     CloudRecordingStatus = "error"
)

type StreamingStatus string

const (
	StreamingIdle      StreamingStatus = "idle"
	StreamingStreaming StreamingStatus = "streaming"
)

type WakeLockStatus string

const (
	WakeLockIdle        WakeLockStatus = "idle"
	WakeLockAcquired    WakeLockStatus = "acquired"
	WakeLockReleased    WakeLockStatus = "released"
	WakeLockUnsupported WakeLockStatus = "unsupported"
)

type KnockResolution string

const (
	KnockAccepted KnockResolution = "accepted"
	KnockRejected KnockResolution = "rejected"
)
