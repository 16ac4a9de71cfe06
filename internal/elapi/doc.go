// Package elapi declares the contract of the EyeLogic gaze-tracking service as
// seen by a client process.
//
// The package only describes the service: result codes, events, configuration
// snapshots, gaze samples and the Client interface a binding must satisfy.
// Bindings live in sub-packages (see elapi/sim for the in-process simulator).
//
// Listener contract:
//   - RegisterEventListener and RegisterGazeSampleListener each hold a single
//     slot; registering replaces the previous listener, nil unregisters.
//   - Listeners are invoked from the binding's notification goroutine, never
//     synchronously from inside a Client method.
package elapi
