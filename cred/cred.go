// Package cred provides the identity of the staging user: DN and credential expiry
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cred

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/dstatus"
)

type (
	Provider interface {
		// identity string (DN) and the time the credentials expire
		Identity() (dn string, expiry time.Time, err error)
	}

	Static struct {
		Expiry time.Time
		DN     string
	}

	// X509File reads a PEM certificate or proxy chain; reloads when modified
	X509File struct {
		mtime  time.Time
		expiry time.Time
		Path   string
		dn     string
		mu     sync.Mutex
	}
)

// interface guard
var (
	_ Provider = (*Static)(nil)
	_ Provider = (*X509File)(nil)
)

var now = time.Now

func (s *Static) Identity() (string, time.Time, error) {
	if s.DN == "" {
		return "", time.Time{}, dstatus.New(dstatus.CredentialsExpiredError, "no identity")
	}
	if !s.Expiry.IsZero() && !s.Expiry.After(now()) {
		return "", s.Expiry, dstatus.Newf(dstatus.CredentialsExpiredError, "%q expired at %v", s.DN, s.Expiry)
	}
	return s.DN, s.Expiry, nil
}

func NewX509File(path string) *X509File { return &X509File{Path: path} }

func (x *X509File) Identity() (string, time.Time, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	finfo, err := os.Stat(x.Path)
	if err != nil {
		return "", time.Time{}, dstatus.Wrap(dstatus.CredentialsExpiredError, err)
	}
	if x.dn == "" || !finfo.ModTime().Equal(x.mtime) {
		if err := x.load(); err != nil {
			return "", time.Time{}, err
		}
		x.mtime = finfo.ModTime()
	}
	if !x.expiry.After(now()) {
		return "", x.expiry, dstatus.Newf(dstatus.CredentialsExpiredError, "%s: %q expired at %v", x.Path, x.dn, x.expiry)
	}
	return x.dn, x.expiry, nil
}

func (x *X509File) load() error {
	b, err := os.ReadFile(x.Path)
	if err != nil {
		return dstatus.Wrap(dstatus.CredentialsExpiredError, err)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, b = pem.Decode(b)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return dstatus.Wrap(dstatus.CredentialsExpiredError, fmt.Errorf("%s: %w", x.Path, err))
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return dstatus.Newf(dstatus.CredentialsExpiredError, "%s: no certificates", x.Path)
	}
	dn, expiry, err := Identify(certs)
	if err != nil {
		return dstatus.Wrap(dstatus.CredentialsExpiredError, fmt.Errorf("%s: %w", x.Path, err))
	}
	x.dn, x.expiry = dn, expiry
	return nil
}

// Identify returns the end-entity DN of a (proxy) chain and its earliest expiry
func Identify(certs []*x509.Certificate) (dn string, expiry time.Time, err error) {
	for _, cert := range certs {
		if expiry.IsZero() || cert.NotAfter.Before(expiry) {
			expiry = cert.NotAfter
		}
	}
	for _, cert := range certs {
		subj, err := FormatDN(cert.RawSubject)
		if err != nil {
			return "", expiry, err
		}
		issuer, err := FormatDN(cert.RawIssuer)
		if err != nil {
			return "", expiry, err
		}
		// proxy: issuer's DN plus one more CN
		if strings.HasPrefix(subj, issuer+"/CN=") && !strings.Contains(subj[len(issuer)+1:], "/") {
			dn = issuer
			continue
		}
		return subj, expiry, nil
	}
	return dn, expiry, nil
}

var shortNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
	"1.2.840.113549.1.9.1":       "emailAddress",
}

// FormatDN renders a DER-encoded name in the slash-separated grid form, in encoding order
func FormatDN(raw []byte) (string, error) {
	var (
		rdns pkix.RDNSequence
		sb   strings.Builder
	)
	if _, err := asn1.Unmarshal(raw, &rdns); err != nil {
		return "", err
	}
	for _, rdn := range rdns {
		for _, atv := range rdn {
			oid := atv.Type.String()
			name, ok := shortNames[oid]
			if !ok {
				name = oid
			}
			sb.WriteByte('/')
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(fmt.Sprint(atv.Value))
		}
	}
	return sb.String(), nil
}
