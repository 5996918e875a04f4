// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/fcache"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	url  = "http://example.org/data/file.dat"
	host = "node1"
	job  = "job1"
)

var _ = Describe("FileCache", func() {
	var (
		dir     string
		now     time.Time
		dead    map[int]bool
		mu      sync.Mutex
		procA   *fcache.Cache
		procB   *fcache.Cache
		payload = []byte("staged payload")
	)

	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }
	alive := func(pid int) bool { mu.Lock(); defer mu.Unlock(); return !dead[pid] }

	newCache := func(pid int, dirs ...string) *fcache.Cache {
		conf := &cmn.CacheConf{Dirs: dirs, JobID: job, StaleLock: cos.Duration(time.Hour)}
		c, err := fcache.New(conf,
			fcache.WithIdentity(fcache.Identity{Pid: pid, Host: host}),
			fcache.WithClock(clock),
			fcache.WithLiveness(alive),
		)
		Expect(err).NotTo(HaveOccurred())
		return c
	}
	fill := func(c *fcache.Cache) {
		Expect(os.WriteFile(c.File(url), payload, cos.PermRWRR)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "fcache-")
		Expect(err).NotTo(HaveOccurred())
		now = time.Now()
		dead = make(map[int]bool)
		procA = newCache(100, dir)
		procB = newCache(200, dir)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	Describe("File", func() {
		It("should map URLs to sharded data paths", func() {
			fqn := procA.File(url)
			rel, err := filepath.Rel(filepath.Join(dir, "data"), fqn)
			Expect(err).NotTo(HaveOccurred())
			parts := strings.Split(rel, string(filepath.Separator))
			Expect(parts).To(HaveLen(2))
			Expect(parts[0]).To(HaveLen(2))
			Expect(parts[1]).To(HaveLen(38))
			Expect(procB.File(url)).To(Equal(fqn))
			Expect(procA.File(url + "x")).NotTo(Equal(fqn))
		})

		It("should select the same root for the same URL", func() {
			dirs := []string{filepath.Join(dir, "r1"), filepath.Join(dir, "r2"), filepath.Join(dir, "r3")}
			c1, c2 := newCache(1, dirs...), newCache(2, dirs...)
			used := make(map[string]bool)
			for i := range 64 {
				u := url + "/" + cos.RandStringStrong(8) + string(rune('a'+i%26))
				fqn := c1.File(u)
				Expect(c2.File(u)).To(Equal(fqn))
				for _, d := range dirs {
					if strings.HasPrefix(fqn, d+string(filepath.Separator)) {
						used[d] = true
					}
				}
			}
			Expect(len(used)).To(BeNumerically(">", 1))
		})
	})

	Describe("Start and Stop", func() {
		It("should give the lock to exactly one process", func() {
			available, locked, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(available).To(BeFalse())
			Expect(locked).To(BeFalse())

			b, err := os.ReadFile(procA.File(url) + ".lock")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("100@" + host))
			first, err := os.ReadFile(procA.File(url) + ".meta")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.SplitN(string(first), "\n", 2)[0]).To(Equal(url))

			_, locked, err = procB.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeTrue())

			fill(procA)
			Expect(procA.Stop(url)).To(Succeed())

			available, locked, err = procB.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
			Expect(available).To(BeTrue())
			Expect(procB.File(url) + ".lock").NotTo(BeAnExistingFile())
		})

		It("should resolve concurrent starts deterministically", func() {
			var (
				wg      sync.WaitGroup
				owners  int
				lockeds int
				resMu   sync.Mutex
			)
			for _, c := range []*fcache.Cache{procA, procB} {
				wg.Add(1)
				go func(c *fcache.Cache) {
					defer GinkgoRecover()
					defer wg.Done()
					_, locked, err := c.Start(url, false)
					Expect(err).NotTo(HaveOccurred())
					resMu.Lock()
					if locked {
						lockeds++
					} else {
						owners++
					}
					resMu.Unlock()
				}(c)
			}
			wg.Wait()
			Expect(owners).To(Equal(1))
			Expect(lockeds).To(Equal(1))
		})

		It("should give the lock to one caller of the same process", func() {
			var (
				wg      sync.WaitGroup
				owners  int
				lockeds int
				resMu   sync.Mutex
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					available, locked, err := procA.Start(url, false)
					Expect(err).NotTo(HaveOccurred())
					Expect(available).To(BeFalse())
					resMu.Lock()
					if locked {
						lockeds++
					} else {
						owners++
					}
					resMu.Unlock()
				}()
			}
			wg.Wait()
			Expect(owners).To(Equal(1))
			Expect(lockeds).To(Equal(7))

			_, locked, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeTrue())

			fill(procA)
			Expect(procA.Stop(url)).To(Succeed())
			available, locked, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
			Expect(available).To(BeTrue())
		})

		It("should reclaim a leftover lock of its own identity", func() {
			Expect(os.MkdirAll(filepath.Dir(procA.File(url)), cos.PermRWX)).To(Succeed())
			Expect(os.WriteFile(procA.File(url)+".lock", []byte("100@"+host), cos.PermRWRR)).To(Succeed())

			available, locked, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(available || locked).To(BeFalse())
			Expect(procA.StopAndDelete(url)).To(Succeed())
		})

		It("should reclaim a lock of a dead process", func() {
			Expect(os.MkdirAll(filepath.Dir(procB.File(url)), cos.PermRWX)).To(Succeed())
			fill(procB) // partial data
			Expect(os.WriteFile(procB.File(url)+".lock", []byte("4242@"+host), cos.PermRWRR)).To(Succeed())
			dead[4242] = true

			available, locked, err := procB.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(available).To(BeFalse())
			Expect(locked).To(BeFalse())
			Expect(procB.File(url)).NotTo(BeAnExistingFile())

			b, err := os.ReadFile(procB.File(url) + ".lock")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("200@" + host))
		})

		It("should reclaim an expired lock of a remote host only", func() {
			Expect(os.MkdirAll(filepath.Dir(procB.File(url)), cos.PermRWX)).To(Succeed())
			lock := procB.File(url) + ".lock"
			Expect(os.WriteFile(lock, []byte("4242@elsewhere"), cos.PermRWRR)).To(Succeed())
			dead[4242] = true // irrelevant: not our host

			_, locked, err := procB.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeTrue())

			advance(2 * time.Hour)
			_, locked, err = procB.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
		})

		It("should not release or delete what it does not own", func() {
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			fill(procA)

			Expect(procB.Stop(url)).To(MatchError(fcache.ErrNotOwner))
			Expect(procB.StopAndDelete(url)).To(MatchError(fcache.ErrNotOwner))
			Expect(procA.File(url)).To(BeAnExistingFile())
			Expect(procA.File(url) + ".lock").To(BeAnExistingFile())

			Expect(procA.StopAndDelete(url)).To(Succeed())
			Expect(procA.File(url)).NotTo(BeAnExistingFile())
			Expect(procA.File(url) + ".meta").NotTo(BeAnExistingFile())
			Expect(procA.File(url) + ".lock").NotTo(BeAnExistingFile())
			Expect(procA.Stop(url)).To(MatchError(fcache.ErrNotOwner))
		})

		It("should delete the entry upon renewal", func() {
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			fill(procA)
			Expect(procA.Stop(url)).To(Succeed())

			available, locked, err := procA.Start(url, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(available || locked).To(BeFalse())
			Expect(procA.File(url)).NotTo(BeAnExistingFile())
		})

		It("should refuse a path that belongs to a different URL", func() {
			fqn := procA.File(url)
			Expect(os.MkdirAll(filepath.Dir(fqn), cos.PermRWX)).To(Succeed())
			Expect(os.WriteFile(fqn+".meta", []byte("http://other/url\n"), cos.PermRWRR)).To(Succeed())

			_, _, err := procA.Start(url, false)
			Expect(err).To(MatchError(fcache.ErrCollision))
			Expect(fqn + ".lock").NotTo(BeAnExistingFile())
		})
	})

	Describe("DN records", func() {
		const dn = "/O=Grid/O=Example/CN=Jane Doe"

		BeforeEach(func() {
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round-trip and expire", func() {
			Expect(procA.CheckDN(url, dn)).To(BeFalse())
			Expect(procA.AddDN(url, dn, now.Add(time.Hour))).To(Succeed())
			Expect(procA.CheckDN(url, dn)).To(BeTrue())
			Expect(procB.CheckDN(url, dn)).To(BeTrue()) // shared between processes
		})

		It("should prune expired records on the next update", func() {
			Expect(procA.AddDN(url, dn, now.Add(time.Hour))).To(Succeed())
			advance(2 * time.Hour)
			Expect(procA.CheckDN(url, dn)).To(BeFalse())

			Expect(procA.AddDN(url, "/CN=other", now.Add(time.Hour))).To(Succeed())
			b, err := os.ReadFile(procA.File(url) + ".meta")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).NotTo(ContainSubstring(dn))
			Expect(string(b)).To(ContainSubstring("/CN=other "))
			Expect(procA.CheckDN(url, "/CN=other")).To(BeTrue())
		})

		It("should replace an existing record of the same DN", func() {
			Expect(procA.AddDN(url, dn, now.Add(time.Hour))).To(Succeed())
			Expect(procA.AddDN(url, dn, now.Add(3*time.Hour))).To(Succeed())
			b, err := os.ReadFile(procA.File(url) + ".meta")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(b), dn)).To(Equal(1))
			advance(2 * time.Hour)
			Expect(procA.CheckDN(url, dn)).To(BeTrue())
		})
	})

	Describe("validity and creation time", func() {
		BeforeEach(func() {
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round-trip validity through metadata", func() {
			Expect(procA.CheckValid(url)).To(BeFalse())
			valid := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
			Expect(procA.SetValid(url, valid)).To(Succeed())
			Expect(procA.CheckValid(url)).To(BeTrue())
			got, ok := procA.Valid(url)
			Expect(ok).To(BeTrue())
			Expect(got.Equal(valid)).To(BeTrue())

			Expect(procA.AddDN(url, "/CN=x", now.Add(time.Hour))).To(Succeed())
			got, _ = procA.Valid(url)
			Expect(got.Equal(valid)).To(BeTrue())
		})

		It("should tolerate malformed metadata", func() {
			meta := procA.File(url) + ".meta"
			Expect(os.WriteFile(meta, []byte(url+" not-a-time\ngarbage\n\n/CN=x 2030\n"), cos.PermRWRR)).To(Succeed())
			Expect(procA.CheckValid(url)).To(BeFalse())
			Expect(procA.CheckDN(url, "/CN=x")).To(BeFalse())
			Expect(procA.AddDN(url, "/CN=y", now.Add(time.Hour))).To(Succeed())
			Expect(procA.CheckDN(url, "/CN=y")).To(BeTrue())
		})

		It("should report the data file's creation time", func() {
			Expect(procA.CheckCreated(url)).To(BeFalse())
			fill(procA)
			created, ok := procA.Created(url)
			Expect(ok).To(BeTrue())
			finfo, err := os.Stat(procA.File(url))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTemporally("~", finfo.ModTime(), time.Second))
		})
	})

	Describe("claiming", func() {
		var dest string

		BeforeEach(func() {
			dest = filepath.Join(dir, "session", "out.dat")
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			fill(procA)
			Expect(procA.Stop(url)).To(Succeed())
		})

		It("should hard link into the job directory and symlink the destination", func() {
			Expect(procA.Link(dest, url)).To(Succeed())
			hl := filepath.Join(dir, "joblinks", job, "out.dat")
			Expect(hl).To(BeARegularFile())
			target, err := os.Readlink(dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(Equal(hl))
			b, err := os.ReadFile(dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(payload))

			finfo, err := os.Stat(filepath.Join(dir, "joblinks", job))
			Expect(err).NotTo(HaveOccurred())
			Expect(finfo.Mode().Perm()).To(Equal(os.FileMode(0o700)))
		})

		It("should copy with the requested mode", func() {
			Expect(procA.Copy(dest, url, true)).To(Succeed())
			finfo, err := os.Lstat(dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(finfo.Mode().IsRegular()).To(BeTrue())
			Expect(finfo.Mode().Perm() & 0o100).NotTo(BeZero())
			b, err := os.ReadFile(dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(payload))
		})

		It("should ask to try again when the cached file vanished", func() {
			Expect(os.Remove(procA.File(url))).To(Succeed())
			Expect(procA.Link(dest, url)).To(MatchError(fcache.ErrTryAgain))
		})

		It("should release all claims of the job", func() {
			Expect(procA.Link(dest, url)).To(Succeed())
			Expect(procA.Release()).To(Succeed())
			Expect(filepath.Join(dir, "joblinks", job)).NotTo(BeADirectory())
			Expect(procA.File(url)).To(BeAnExistingFile())
			Expect(procA.Release()).To(Succeed())
		})
	})

	Describe("Sweep", func() {
		It("should remove stale locks and their partial data", func() {
			_, _, err := procA.Start(url, false)
			Expect(err).NotTo(HaveOccurred())
			fill(procA)

			other := url + ".live"
			_, _, err = procB.Start(other, false)
			Expect(err).NotTo(HaveOccurred())

			dead[100] = true
			n, err := procB.Sweep(now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(procA.File(url)).NotTo(BeAnExistingFile())
			Expect(procA.File(url) + ".lock").NotTo(BeAnExistingFile())
			Expect(procB.File(other) + ".lock").To(BeAnExistingFile())
		})
	})
})
