// File: ioservice/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// BaseAdvisor grounds supplemented feature 3 (original_source's
// can_recreate/can_auto_disconnect Endpoint hooks): an embeddable default
// that always permits reconnect and auto-disconnect, so most Endpoint
// implementations don't need to write these methods by hand.

package ioservice

import (
	"time"

	"github.com/momentics/hioload-net/api"
)

// BaseAdvisor is an embeddable api.ReconnectAdvisor that always answers
// true. Embed it in a concrete Endpoint to opt into the default policy and
// override only the method you need different behavior from.
type BaseAdvisor struct{}

func (BaseAdvisor) CanRecreate(api.DisconnectReason) bool { return true }
func (BaseAdvisor) CanAutoDisconnect() bool               { return true }

// AutoDisconnectSupplier lets an Endpoint report a dynamically computed
// inactivity TTL instead of a fixed duration (supplemented feature 5,
// grounded on original_source's with_auto_disconnect_supplier). An
// Endpoint that doesn't implement this uses IOService's configured fixed
// TTL, if any.
type AutoDisconnectSupplier interface {
	AutoDisconnectTTL() time.Duration
}
