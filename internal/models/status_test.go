package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionScanStatus(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "pending to scanning", from: ScanStatusPending, to: ScanStatusScanning, want: true},
		{name: "scanning to clean", from: ScanStatusScanning, to: ScanStatusClean, want: true},
		{name: "scanning to infected", from: ScanStatusScanning, to: ScanStatusInfected, want: true},
		{name: "scanning to error", from: ScanStatusScanning, to: ScanStatusError, want: true},
		{name: "pending skips scanning", from: ScanStatusPending, to: ScanStatusClean, want: false},
		{name: "clean is terminal", from: ScanStatusClean, to: ScanStatusScanning, want: false},
		{name: "infected never regresses", from: ScanStatusInfected, to: ScanStatusClean, want: false},
		{name: "error is terminal", from: ScanStatusError, to: ScanStatusPending, want: false},
		{name: "unknown from", from: "bogus", to: ScanStatusClean, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionScanStatus(tt.from, tt.to))
		})
	}
}

func TestCanTransitionProcessingStatus(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "pending to processing", from: ProcessingStatusPending, to: ProcessingStatusProcessing, want: true},
		{name: "processing to completed", from: ProcessingStatusProcessing, to: ProcessingStatusCompleted, want: true},
		{name: "processing to failed", from: ProcessingStatusProcessing, to: ProcessingStatusFailed, want: true},
		{name: "pending skips processing", from: ProcessingStatusPending, to: ProcessingStatusCompleted, want: false},
		{name: "completed is terminal", from: ProcessingStatusCompleted, to: ProcessingStatusProcessing, want: false},
		{name: "failed is terminal", from: ProcessingStatusFailed, to: ProcessingStatusPending, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionProcessingStatus(tt.from, tt.to))
		})
	}
}
