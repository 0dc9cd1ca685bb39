package metrics

import "time"

// Operation names shared by recorders.
const (
	// OpInterrupt is one served spectrometer interrupt.
	OpInterrupt = "interrupt"
	// OpBufferRead is one hardware buffer taken from the IP core.
	OpBufferRead = "buffer_read"
	// OpPublish is one spectrum handed to the broadcast channel.
	OpPublish = "publish"
	// OpDecode is the conversion of one buffer to float32 bins.
	OpDecode = "decode"
	// OpSnapshot is the locked register read at each interrupt.
	OpSnapshot = "snapshot"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	// StatusNoReceivers marks a buffer dropped because nobody subscribed.
	StatusNoReceivers = "no_receivers"
)

// ShutdownTimeout bounds graceful shutdown of HTTP listeners.
const ShutdownTimeout = 5 * time.Second
