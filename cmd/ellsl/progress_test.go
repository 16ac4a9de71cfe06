package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_Seconds(t *testing.T) {
	up := NewProgressPrinter(&lockedBuffer{}, "Streaming", phaseWaiting)
	assert.Equal(t, 3, up.seconds(3700*time.Millisecond))

	down := NewCountdownProgressPrinter(&lockedBuffer{}, "Streaming", phaseWaiting, 10*time.Second)
	assert.Equal(t, 6, down.seconds(3700*time.Millisecond), "remaining time MUST round to the nearest second")
	assert.Equal(t, 7, down.seconds(3300*time.Millisecond))
	assert.Equal(t, 0, down.seconds(11*time.Second), "countdown MUST NOT go negative")
}

func TestProgressPrinter_StopPhase(t *testing.T) {
	// GOAL: Verify a stop phase set through the callback stops the printer and clears the line
	//
	// TEST SCENARIO: Start → phase updates → stop phase → line cleared → Stop again is a no-op

	out := &lockedBuffer{}
	p := NewProgressPrinter(out, "Streaming", phaseWaiting, phaseStopped)
	p.Start()

	setPhase := p.Callback()
	setPhase(phaseServing)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), phaseServing)
	}, time.Second, 10*time.Millisecond, "phase update MUST be printed")

	setPhase(phaseStopped)
	assert.True(t, strings.HasSuffix(out.String(), clearLineSequence), "stop MUST clear the status line")

	p.Stop()
	assert.Panics(t, p.Start, "a printer MUST NOT be restarted")
}
