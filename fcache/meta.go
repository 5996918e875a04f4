// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/debug"
)

// .meta:
//
//	<url>[ <validity>]
//	<dn> <expiry>
//	...
//
// timestamps are cos.StampMeta

func readMeta(meta string) ([]string, error) {
	b, err := os.ReadFile(meta)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("empty metadata file %s", meta)
	}
	return lines, nil
}

func readFirstLine(meta string) (string, error) {
	fh, err := os.Open(meta)
	if err != nil {
		return "", err
	}
	defer cos.Close(fh)
	scanner := bufio.NewScanner(fh)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return scanner.Text(), nil
}

// write-new-then-rename
func writeMeta(meta string, lines []string) (err error) {
	var (
		fh  *os.File
		tmp = meta + tmpSfx + "." + cos.GenTie()
	)
	if fh, err = cos.CreateFile(tmp); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			errRm := os.Remove(tmp)
			debug.AssertNoErr(errRm)
		}
	}()
	w := bufio.NewWriter(fh)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err = w.Flush(); err != nil {
		cos.Close(fh)
		return err
	}
	if err = fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, meta)
}

// URL line: "<url> <validity>"; URLs carry no spaces
func cutValidity(line string) (url, validity string) {
	url, validity, _ = cutLast(line, " ")
	return url, validity
}

func parseDN(line string) (dn string, expiry time.Time, err error) {
	dn, stamp, ok := cutLast(line, " ")
	if !ok || dn == "" {
		return "", expiry, fmt.Errorf("invalid DN record %q", line)
	}
	expiry, err = cos.ParseMetaTime(stamp)
	return dn, expiry, err
}

// (under guard)
func (c *Cache) loadMeta(url string) (string, []string, error) {
	meta := c.File(url) + metaSfx
	lines, err := readMeta(meta)
	if err != nil {
		return meta, nil, err
	}
	if u, _ := cutValidity(lines[0]); u != url {
		return meta, nil, fmt.Errorf("%w: %s is %q, expecting %q", ErrCollision, meta, u, url)
	}
	return meta, lines, nil
}

/////////////////
// DN records  //
/////////////////

// AddDN records dn as authorized to access url until expiry; prunes expired records
func (c *Cache) AddDN(url, dn string, expiry time.Time) error {
	if dn == "" {
		return fmt.Errorf("cache: empty DN for %s", url)
	}
	mu := c.guard(url)
	mu.Lock()
	defer mu.Unlock()

	meta, lines, err := c.loadMeta(url)
	if err != nil {
		return err
	}
	var (
		now     = c.now()
		updated = make([]string, 1, len(lines)+1)
	)
	updated[0] = lines[0]
	for _, l := range lines[1:] {
		d, exp, err := parseDN(l)
		if err != nil || d == dn || !exp.After(now) {
			continue
		}
		updated = append(updated, l)
	}
	updated = append(updated, dn+" "+cos.FormatMetaTime(expiry))
	return writeMeta(meta, updated)
}

// CheckDN: dn has a live authorization record for url
func (c *Cache) CheckDN(url, dn string) bool {
	if dn == "" {
		return false
	}
	_, lines, err := c.loadMeta(url)
	if err != nil {
		return false
	}
	now := c.now()
	for _, l := range lines[1:] {
		if d, exp, err := parseDN(l); err == nil && d == dn {
			return exp.After(now)
		}
	}
	return false
}

//////////////
// validity //
//////////////

// Valid returns the explicit validity time (unknown until SetValid)
func (c *Cache) Valid(url string) (time.Time, bool) {
	_, lines, err := c.loadMeta(url)
	if err != nil {
		return time.Time{}, false
	}
	_, validity := cutValidity(lines[0])
	if validity == "" {
		return time.Time{}, false
	}
	t, err := cos.ParseMetaTime(validity)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *Cache) CheckValid(url string) bool {
	_, ok := c.Valid(url)
	return ok
}

func (c *Cache) SetValid(url string, t time.Time) error {
	mu := c.guard(url)
	mu.Lock()
	defer mu.Unlock()

	meta, lines, err := c.loadMeta(url)
	if err != nil {
		return err
	}
	lines[0] = url + " " + cos.FormatMetaTime(t)
	return writeMeta(meta, lines)
}

/////////////
// created //
/////////////

// Created is the inode change time of the data file
func (c *Cache) Created(url string) (time.Time, bool) {
	t, err := ctime(c.File(url))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *Cache) CheckCreated(url string) bool {
	_, ok := c.Created(url)
	return ok
}
