// Package dpoint defines data points: the source and destination endpoints
// of a transfer, either direct (physical) or indexed (logical names resolved
// through an index service into replicas)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dpoint

import (
	"fmt"
	"sort"
	"sync"

	"github.com/IATkachenko/arc-sub001/durl"
)

type Factory func(u *durl.URL, env *Env) (Endpoint, error)

type ErrUnsupported struct {
	scheme string
}

var (
	regMu     sync.RWMutex
	factories = make(map[string]Factory, 8)
)

// Register is called from the init() of each protocol package
func Register(scheme string, kind Kind, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := factories[scheme]; ok {
		panic("duplicate data point scheme " + scheme)
	}
	factories[scheme] = f
	if kind == Indexed {
		durl.RegisterIndexed(scheme)
	}
}

func Schemes() []string {
	regMu.RLock()
	schemes := make([]string, 0, len(factories))
	for s := range factories {
		schemes = append(schemes, s)
	}
	regMu.RUnlock()
	sort.Strings(schemes)
	return schemes
}

func New(rawURL string, env *Env) (Endpoint, error) {
	u, err := durl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return NewFromURL(u, env)
}

func NewFromURL(u *durl.URL, env *Env) (Endpoint, error) {
	regMu.RLock()
	f, ok := factories[u.Scheme]
	regMu.RUnlock()
	if !ok {
		return nil, &ErrUnsupported{u.Scheme}
	}
	return f(u, env)
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported protocol %q (registered: %v)", e.scheme, Schemes())
}
