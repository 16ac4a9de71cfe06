package main

import (
	"github.com/srg/ellsl/internal/elapi"
)

// resultMessages holds the one user-visible message of every service result code,
// keyed by "<op>:<code>" as reported by elapi.ResultError
var resultMessages = map[string]string{
	"connect:success":          "Connected to the EyeLogic service",
	"connect:failure":          "Could not connect to the EyeLogic service. Is the server running?",
	"connect:version_mismatch": "The EyeLogic service version does not match this client",

	"start:success":                             "Tracking started",
	"start:not_connected":                       "Not connected to the service. Use 'connect' first",
	"start:device_missing":                      "No eye tracker is attached to the service",
	"start:invalid_framerate_mode":              "The requested frame rate is not supported by the device",
	"start:already_running_different_framerate": "Another client is already tracking at a different frame rate",
	"start:failure":                             "Tracking could not be started",

	"calibrate:success":                  "Calibration finished",
	"calibrate:not_connected":            "Not connected to the service. Use 'connect' first",
	"calibrate:not_tracking":             "Calibration needs a running stream. Use 'startstream' first",
	"calibrate:invalid_calibration_mode": "The requested calibration mode is not supported by the device",
	"calibrate:already_busy":             "A calibration or validation is already running",
	"calibrate:failure":                  "Calibration failed or was aborted",

	"validate:success":        "Validation finished",
	"validate:not_connected":  "Not connected to the service. Use 'connect' first",
	"validate:not_tracking":   "Validation needs a running stream. Use 'startstream' first",
	"validate:not_calibrated": "Validation needs a calibration. Use 'calibrate' first",
	"validate:already_busy":   "A calibration or validation is already running",
	"validate:failure":        "Validation failed or was aborted",
}

func resultMessage(op, code string) string {
	if msg, ok := resultMessages[op+":"+code]; ok {
		return msg
	}
	return op + ": " + code
}

func connectMessage(r elapi.ReturnConnect) string {
	return resultMessage("connect", r.String())
}

func startMessage(r elapi.ReturnStart) string {
	return resultMessage("start", r.String())
}

func calibrateMessage(r elapi.ReturnCalibrate) string {
	return resultMessage("calibrate", r.String())
}

func validateMessage(r elapi.ReturnValidate) string {
	return resultMessage("validate", r.String())
}

// eventMessage describes a service event for the console backlog
func eventMessage(ev elapi.Event) string {
	switch ev {
	case elapi.EventConnectionClosed:
		return "Connection to the service closed. Use 'connect' to reconnect"
	case elapi.EventDeviceConnected:
		return "Eye tracker connected"
	case elapi.EventDeviceDisconnected:
		return "Eye tracker disconnected"
	case elapi.EventScreenChanged:
		return "Active screen changed"
	case elapi.EventTrackingStopped:
		return "Tracking stopped by the service"
	default:
		return "Service event: " + ev.String()
	}
}
