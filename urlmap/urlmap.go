// Package urlmap rewrites source locations into alternate, typically local, forms
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package urlmap

import (
	"fmt"
	"os"
	"strings"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/durl"
)

type (
	rule struct {
		prefix string
		repl   string
		access bool
	}

	// Map is immutable once built; safe for concurrent use
	Map struct {
		rules []rule
	}
)

// New validates the rules; prefixes and replacements are given as URLs
func New(rules []cmn.URLMapRule) (*Map, error) {
	m := &Map{rules: make([]rule, 0, len(rules))}
	for i := range rules {
		r := &rules[i]
		if err := r.Validate(); err != nil {
			return nil, err
		}
		prefix, err := durl.Parse(r.Prefix)
		if err != nil {
			return nil, fmt.Errorf("url_map[%d]: %v", i, err)
		}
		repl, err := durl.Parse(r.Replacement)
		if err != nil {
			return nil, fmt.Errorf("url_map[%d]: %v", i, err)
		}
		// keep the trailing separator the user wrote
		p, rp := prefix.CanonicalString(), repl.CanonicalString()
		if strings.HasSuffix(r.Prefix, "/") && !strings.HasSuffix(p, "/") {
			p += "/"
		}
		if strings.HasSuffix(r.Replacement, "/") && !strings.HasSuffix(rp, "/") {
			rp += "/"
		}
		m.rules = append(m.rules, rule{prefix: p, repl: rp, access: r.Access})
	}
	return m, nil
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Map returns the first applicable rewrite of u; a rule marked `access`
// applies only when the mapped location is an existing local file
func (m *Map) Map(u *durl.URL) (*durl.URL, bool) {
	if m == nil {
		return nil, false
	}
	s := u.CanonicalString()
	for _, r := range m.rules {
		rest, ok := strings.CutPrefix(s, r.prefix)
		if !ok {
			continue
		}
		mapped, err := durl.Parse(r.repl + rest)
		if err != nil {
			nlog.Warningln("url_map:", s, "=>", r.repl+rest+":", err)
			continue
		}
		if r.access {
			if !mapped.IsLocal() {
				continue
			}
			if _, err := os.Stat(mapped.Path); err != nil {
				continue
			}
		}
		if nlog.V(nlog.LevelVerbose) {
			nlog.Infoln("url_map:", s, "=>", mapped.String())
		}
		return mapped, true
	}
	return nil, false
}

// Local: u maps onto a local file
func (m *Map) Local(u *durl.URL) bool {
	mapped, ok := m.Map(u)
	return ok && mapped.IsLocal()
}
