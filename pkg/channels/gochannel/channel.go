// Package gochannel is the in-process bus of a single workflow-api process and of tests.
package gochannel

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer is how many events may queue per subscriber before Publish blocks.
const DefaultBuffer = 1024

// CreateChannel returns one GoChannel acting as publisher and subscriber. Events only
// reach subscribers that exist when they are published, unless persistent is set, in
// which case late subscribers get a replay.
func CreateChannel(logger watermill.LoggerAdapter, buffer int64, persistent bool) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if buffer <= 0 {
		return nil, nil, fmt.Errorf("gochannel buffer must be positive, got %d", buffer)
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
		Persistent:          persistent,
	}, logger)

	return pubSub, pubSub, nil
}
