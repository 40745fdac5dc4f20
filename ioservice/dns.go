// File: ioservice/dns.go
// Author: momentics <momentics@gmail.com>
//
// Asynchronous DNS resolution: one background goroutine per in-flight
// lookup, bounded by a timeout, reporting back on a single shared
// completion channel the tick loop drains once per poll (§4.6 "DNS"). This
// is the one off-thread activity the single-threaded cooperative model
// permits (§5); it never touches slot state directly, only posts a result.

package ioservice

import (
	"context"
	"net"
	"time"
)

type dnsResult struct {
	handle Handle
	addrs  []net.IP
	err    error
}

func (s *IOService) beginResolve(handle Handle, host string, timeout time.Duration) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		ips := make([]net.IP, len(addrs))
		for i, a := range addrs {
			ips[i] = a.IP
		}
		s.dnsDone <- dnsResult{handle: handle, addrs: ips, err: err}
	}()
}
