package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval = 200 * time.Millisecond

	// Input Dimensions
	InputWidth = 50

	// Layout Offsets and Padding
	HeaderWidthOffset      = 2
	ProgressBarWidthOffset = 4
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0
	PopupPaddingY          = 2
	PopupPaddingX          = 4

	// Speed graph
	GraphHeight       = 4
	GraphHistoryLimit = 120

	// Rows of the download list kept visible around the cursor
	MinListRows = 3
)
