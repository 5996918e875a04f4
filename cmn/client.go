// Package cmn provides common constants, types, and utilities for the staging engine
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	DfltDialupTimeout = 10 * time.Second
	DfltKeepaliveTCP  = 30 * time.Second
)

// [NOTE]
// net/http.DefaultTransport keeps 2 idle connections per host; parallel
// range readers open up to Transfer.MaxStreams connections to the same host
const (
	DefaultMaxIdleConns        = 0 // unlimited
	DefaultMaxIdleConnsPerHost = 32
	DefaultIdleConnTimeout     = 6 * time.Second
	DefaultWriteBufferSize     = 64 * 1024
	DefaultReadBufferSize      = 64 * 1024
)

type TransportArgs struct {
	DialTimeout      time.Duration
	Timeout          time.Duration
	IdleConnTimeout  time.Duration
	IdleConnsPerHost int
	MaxIdleConns     int
	WriteBufferSize  int
	ReadBufferSize   int
	UseHTTPProxyEnv  bool
	SkipVerify       bool
}

func nonZero[T int | time.Duration](v, def T) T {
	if v != 0 {
		return v
	}
	return def
}

func NewTransport(cargs TransportArgs) *http.Transport {
	defaultTransport := http.DefaultTransport.(*http.Transport)
	dialer := &net.Dialer{
		Timeout:   nonZero(cargs.DialTimeout, DfltDialupTimeout),
		KeepAlive: DfltKeepaliveTCP,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   defaultTransport.TLSHandshakeTimeout,
		ExpectContinueTimeout: defaultTransport.ExpectContinueTimeout,
		DisableCompression:    true, // byte ranges must map onto the stored object
	}
	transport.IdleConnTimeout = nonZero(cargs.IdleConnTimeout, DefaultIdleConnTimeout)
	transport.MaxIdleConnsPerHost = nonZero(cargs.IdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	transport.MaxIdleConns = nonZero(cargs.MaxIdleConns, DefaultMaxIdleConns)
	transport.WriteBufferSize = nonZero(cargs.WriteBufferSize, DefaultWriteBufferSize)
	transport.ReadBufferSize = nonZero(cargs.ReadBufferSize, DefaultReadBufferSize)
	if cargs.UseHTTPProxyEnv {
		transport.Proxy = defaultTransport.Proxy
	}
	return transport
}

func NewClient(cargs TransportArgs) *http.Client {
	return &http.Client{Transport: NewTransport(cargs), Timeout: cargs.Timeout}
}

func NewClientTLS(cargs TransportArgs) *http.Client {
	transport := NewTransport(cargs)
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cargs.SkipVerify} //nolint:gosec // per configuration
	return &http.Client{Transport: transport, Timeout: cargs.Timeout}
}

// NewDefaultClients returns plain and TLS clients; no overall timeout since
// transfers are policed by the buffer's speed and inactivity limits
func NewDefaultClients(skipVerify bool) (clientH, clientTLS *http.Client) {
	clientH = NewClient(TransportArgs{UseHTTPProxyEnv: true})
	clientTLS = NewClientTLS(TransportArgs{UseHTTPProxyEnv: true, SkipVerify: skipVerify})
	return
}
