// Package durl parses and renders data staging URLs, including URL options,
// metadata options, and embedded location lists
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package durl

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// URL grammar:
//
//	scheme://[loc1|loc2@][user@]host[:port][;opt=val...]/path[?query][:mdopt=val...]
//
// a bare absolute or relative path is a `file` URL, and "-" denotes stdio

const (
	SchemeFile = "file"
	Stdio      = "-"

	optSepa   = ";"
	locSepa   = "|"
	mdSepa    = ":"
	schemeSfx = "://"
)

// URL options consumed by the staging core
const (
	OptThreads   = "threads"
	OptCache     = "cache"    // no | copy | renew | invariant
	OptExec      = "exec"     // yes
	OptOverwrite = "overwrite"
	OptChecksum  = "checksum" // algorithm or "no"
	OptReadonly  = "readonly"
	OptName      = "name" // metadata name of a location
	OptRegion    = "region"
	OptEndpoint  = "endpoint"
)

const (
	CacheNo    = "no"
	CacheCopy  = "copy"
	CacheRenew = "renew"
)

// metadata options
const (
	MdGUID          = "guid"
	MdChecksumType  = "checksumtype"
	MdChecksumValue = "checksumvalue"
)

type URL struct {
	opts   map[string]string
	mdopts map[string]string
	Scheme string
	User   string
	Host   string
	Path   string
	Query  string
	locs   []*URL
	Port   int
}

var (
	idxMu   sync.RWMutex
	indexed = map[string]bool{"idx": true}
)

var ErrEmpty = errors.New("empty URL")

// RegisterIndexed marks scheme as carrying an embedded location list in place of user info
func RegisterIndexed(scheme string) {
	idxMu.Lock()
	indexed[scheme] = true
	idxMu.Unlock()
}

func IsIndexed(scheme string) bool {
	idxMu.RLock()
	v := indexed[scheme]
	idxMu.RUnlock()
	return v
}

func Parse(s string) (*URL, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, ErrEmpty
	case s == Stdio:
		return &URL{Scheme: SchemeFile, Path: Stdio}, nil
	}
	i := strings.Index(s, schemeSfx)
	if i < 0 {
		if strings.ContainsAny(s, ";|") && !strings.HasPrefix(s, "/") {
			return nil, fmt.Errorf("invalid URL %q", s)
		}
		return parsePath(s, "")
	}
	if i == 0 {
		return nil, fmt.Errorf("invalid URL %q: missing scheme", s)
	}
	u := &URL{Scheme: strings.ToLower(s[:i])}
	rest := s[i+len(schemeSfx):]

	// path (with query and metadata options) starts at the first '/' past the authority
	auth, pth := splitAuthority(rest, IsIndexed(u.Scheme))
	if err := u.parseAuthority(auth); err != nil {
		return nil, fmt.Errorf("invalid URL %q: %v", s, err)
	}
	pth = u.cutMetaOptions(pth)
	if q := strings.IndexByte(pth, '?'); q >= 0 {
		u.Query, pth = pth[q+1:], pth[:q]
	}
	u.Path = pth
	if u.Scheme == SchemeFile {
		// file options follow the path: file:///a/b;name=x
		if semi := strings.Index(u.Path, optSepa); semi >= 0 {
			u.parseOptions(u.Path[semi+1:])
			u.Path = u.Path[:semi]
		}
		if u.Host != "" && u.Host != "localhost" {
			return nil, fmt.Errorf("invalid file URL %q: unexpected host %q", s, u.Host)
		}
		u.Host = ""
		if u.Path == "" {
			return nil, fmt.Errorf("invalid file URL %q: empty path", s)
		}
		u.Path = filepath.Clean(u.Path)
	} else if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func MustParse(s string) *URL {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func parsePath(s, opts string) (*URL, error) {
	abs, err := filepath.Abs(s)
	if err != nil {
		return nil, err
	}
	u := &URL{Scheme: SchemeFile, Path: abs}
	if opts != "" {
		u.parseOptions(opts)
	}
	return u, nil
}

// embedded locations are full URLs containing '/' themselves: for indexed schemes
// the authority extends to the first '/' after the last '@'
func splitAuthority(rest string, idx bool) (auth, pth string) {
	start := 0
	if idx {
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			if slash := strings.IndexByte(rest, '/'); slash < 0 || slash > at || strings.Contains(rest[:at], schemeSfx) {
				start = at + 1
			}
		}
	}
	if slash := strings.IndexByte(rest[start:], '/'); slash >= 0 {
		return rest[:start+slash], rest[start+slash:]
	}
	return rest, ""
}

func (u *URL) parseAuthority(auth string) error {
	hostpart := auth
	if at := strings.LastIndex(auth, "@"); at >= 0 {
		prefix := auth[:at]
		hostpart = auth[at+1:]
		if IsIndexed(u.Scheme) {
			for loc := range strings.SplitSeq(prefix, locSepa) {
				if loc == "" {
					continue
				}
				l, err := parseLocation(loc)
				if err != nil {
					return err
				}
				u.locs = append(u.locs, l)
			}
		} else {
			u.User = prefix
		}
	}
	if semi := strings.Index(hostpart, optSepa); semi >= 0 {
		u.parseOptions(hostpart[semi+1:])
		hostpart = hostpart[:semi]
	}
	host := hostpart
	if c := strings.LastIndexByte(hostpart, ':'); c >= 0 && !strings.HasSuffix(hostpart, "]") {
		port, err := strconv.Atoi(hostpart[c+1:])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", hostpart[c+1:])
		}
		host, u.Port = hostpart[:c], port
	}
	u.Host = strings.ToLower(host)
	return nil
}

func parseLocation(s string) (*URL, error) {
	if strings.HasPrefix(s, "/") {
		// "/path;name=x"
		pth, opts, _ := strings.Cut(s, optSepa)
		return parsePath(pth, opts)
	}
	if !strings.Contains(s, schemeSfx) {
		return nil, fmt.Errorf("invalid location %q", s)
	}
	return Parse(s)
}

func (u *URL) parseOptions(s string) {
	for kv := range strings.SplitSeq(s, optSepa) {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		u.SetOption(k, v)
	}
}

// trailing ":key=value" segments
func (u *URL) cutMetaOptions(pth string) string {
	for {
		c := strings.LastIndex(pth, mdSepa)
		if c < 0 {
			return pth
		}
		seg := pth[c+1:]
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" || strings.ContainsAny(seg, "/?") || !isKey(k) {
			return pth
		}
		if u.mdopts == nil {
			u.mdopts = make(map[string]string, 2)
		}
		u.mdopts[strings.ToLower(k)] = v
		pth = pth[:c]
	}
}

func isKey(k string) bool {
	for _, c := range k {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

/////////////
// options //
/////////////

func (u *URL) Option(k string) string { return u.opts[k] }

func (u *URL) OptionDefault(k, def string) string {
	if v, ok := u.opts[k]; ok {
		return v
	}
	return def
}

func (u *URL) HasOption(k string) bool { _, ok := u.opts[k]; return ok }

func (u *URL) SetOption(k, v string) {
	if u.opts == nil {
		u.opts = make(map[string]string, 4)
	}
	u.opts[strings.ToLower(k)] = v
}

// BoolOption: yes, true, 1
func (u *URL) BoolOption(k string) bool {
	switch strings.ToLower(u.opts[k]) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

func (u *URL) IntOption(k string, def int) int {
	v, ok := u.opts[k]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Threads returns the requested parallelism clamped to [1, max]
func (u *URL) Threads(maxStreams int) int {
	n := u.IntOption(OptThreads, 1)
	if n < 1 {
		n = 1
	}
	if maxStreams > 0 && n > maxStreams {
		n = maxStreams
	}
	return n
}

func (u *URL) MetaOption(k string) string { return u.mdopts[k] }

///////////////
// locations //
///////////////

func (u *URL) Locations() []*URL { return u.locs }

func (u *URL) AddLocation(l *URL) { u.locs = append(u.locs, l) }

// Name is the metadata name a location is registered under
func (u *URL) Name() string {
	if n := u.opts[OptName]; n != "" {
		return n
	}
	return u.CanonicalString()
}

///////////////
// rendering //
///////////////

func (u *URL) IsStdio() bool { return u.Scheme == SchemeFile && u.Path == Stdio }
func (u *URL) IsLocal() bool { return u.Scheme == SchemeFile && !u.IsStdio() }

func (u *URL) HostPort() string {
	if u.Port == 0 {
		return u.Host
	}
	return u.Host + ":" + strconv.Itoa(u.Port)
}

// CanonicalString excludes options, metadata options, and locations (cache key)
func (u *URL) CanonicalString() string {
	if u.IsStdio() {
		return Stdio
	}
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString(schemeSfx)
	if u.User != "" {
		sb.WriteString(u.User)
		sb.WriteByte('@')
	}
	sb.WriteString(u.HostPort())
	sb.WriteString(u.Path)
	if u.Query != "" {
		sb.WriteByte('?')
		sb.WriteString(u.Query)
	}
	return sb.String()
}

func (u *URL) String() string {
	if u.IsStdio() {
		return Stdio
	}
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString(schemeSfx)
	if len(u.locs) > 0 {
		for i, l := range u.locs {
			if i > 0 {
				sb.WriteString(locSepa)
			}
			sb.WriteString(l.String())
		}
		sb.WriteByte('@')
	}
	if u.User != "" {
		sb.WriteString(u.User)
		sb.WriteByte('@')
	}
	sb.WriteString(u.HostPort())
	if u.Scheme != SchemeFile {
		u.writeOptions(&sb)
	}
	sb.WriteString(u.Path)
	if u.Query != "" {
		sb.WriteByte('?')
		sb.WriteString(u.Query)
	}
	if u.Scheme == SchemeFile {
		u.writeOptions(&sb)
	}
	for _, k := range sortedKeys(u.mdopts) {
		sb.WriteString(mdSepa)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(u.mdopts[k])
	}
	return sb.String()
}

func (u *URL) writeOptions(sb *strings.Builder) {
	for _, k := range sortedKeys(u.opts) {
		sb.WriteString(optSepa)
		sb.WriteString(k)
		if v := u.opts[k]; v != "" {
			sb.WriteByte('=')
			sb.WriteString(v)
		}
	}
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (u *URL) Clone() *URL {
	c := *u
	if u.opts != nil {
		c.opts = make(map[string]string, len(u.opts))
		for k, v := range u.opts {
			c.opts[k] = v
		}
	}
	if u.mdopts != nil {
		c.mdopts = make(map[string]string, len(u.mdopts))
		for k, v := range u.mdopts {
			c.mdopts[k] = v
		}
	}
	if u.locs != nil {
		c.locs = make([]*URL, len(u.locs))
		for i, l := range u.locs {
			c.locs[i] = l.Clone()
		}
	}
	return &c
}

// Join appends name to the path (listing results)
func (u *URL) Join(name string) *URL {
	c := u.Clone()
	c.locs = nil
	c.Path = strings.TrimSuffix(c.Path, "/") + "/" + strings.TrimPrefix(name, "/")
	return c
}
