// Package dpoint defines data points: the source and destination endpoints
// of a transfer, either direct (physical) or indexed (logical names resolved
// through an index service into replicas)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dpoint

import (
	"io"
	"net/http"
	"sync"

	"github.com/IATkachenko/arc-sub001/catalog"
	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/cred"
	"github.com/IATkachenko/arc-sub001/durl"
	"github.com/IATkachenko/arc-sub001/memsys"
)

type (
	// Env is passed to every endpoint a process creates
	Env struct {
		Config   *cmn.Config
		Pool     *Pool
		Catalogs *catalog.Registry
		Cred     cred.Provider
		MMSA     *memsys.MMSA
	}

	// Pool holds the protocol clients, each constructed once and shared
	// by all endpoints that talk to the same service
	Pool struct {
		clients map[string]*http.Client
		objs    map[string]any
		mu      sync.Mutex
		secure  bool
	}
)

func NewEnv(config *cmn.Config, provider cred.Provider) *Env {
	return &Env{
		Config:   config,
		Pool:     NewPool(config.Transfer.Secure),
		Catalogs: catalog.NewRegistry(config.Catalog.Dir),
		Cred:     provider,
		MMSA:     memsys.DefaultMMSA(),
	}
}

func (env *Env) Close() {
	env.Pool.Close()
	env.Catalogs.Close()
}

//////////
// Pool //
//////////

// secure: verify server certificates
func NewPool(secure bool) *Pool {
	return &Pool{
		clients: make(map[string]*http.Client, 4),
		objs:    make(map[string]any, 4),
		secure:  secure,
	}
}

// HTTPClient returns the client for the URL's host and TLS-ness
func (p *Pool) HTTPClient(u *durl.URL) *http.Client {
	key := u.Scheme + "://" + u.HostPort()
	p.mu.Lock()
	defer p.mu.Unlock()
	if cli, ok := p.clients[key]; ok {
		return cli
	}
	var cli *http.Client
	if u.Scheme == "https" {
		cli = cmn.NewClientTLS(cmn.TransportArgs{UseHTTPProxyEnv: true, SkipVerify: !p.secure})
	} else {
		cli = cmn.NewClient(cmn.TransportArgs{UseHTTPProxyEnv: true})
	}
	p.clients[key] = cli
	return cli
}

// Load returns the object stored under key, creating it on first use
func (p *Pool) Load(key string, create func() (any, error)) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objs[key]; ok {
		return obj, nil
	}
	obj, err := create()
	if err != nil {
		return nil, err
	}
	p.objs[key] = obj
	return obj, nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, cli := range p.clients {
		cli.CloseIdleConnections()
		delete(p.clients, key)
	}
	for key, obj := range p.objs {
		if c, ok := obj.(io.Closer); ok {
			if err := c.Close(); err != nil {
				nlog.Warningln("pool:", key, err)
			}
		}
		delete(p.objs, key)
	}
}
