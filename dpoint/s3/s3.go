// Package s3 implements the S3 object storage data point: s3://bucket/key
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/IATkachenko/arc-sub001/chunk"
	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"
)

const Scheme = "s3"

const defaultRegion = "us-east-1"

type endpoint struct {
	dpoint.Base
	svc          *awss3.Client
	chunks       *chunk.Allocator
	bucket       string
	key          string
	rjob         dpoint.Job
	wjob         dpoint.Job
	threads      int
	rangeRetries int
	mu           sync.Mutex
}

// interface guard
var _ dpoint.Endpoint = (*endpoint)(nil)

func init() { dpoint.Register(Scheme, dpoint.Direct, New) }

func New(u *durl.URL, env *dpoint.Env) (dpoint.Endpoint, error) {
	if env == nil || env.Pool == nil {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: no connection pool", u)
	}
	if u.Host == "" {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: missing bucket", u)
	}
	conf := env.Conf()
	svc, err := client(env.Pool, &conf.S3, u)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.NotInitializedError, err)
	}
	ep := &endpoint{
		Base:         dpoint.NewBase(u, env, dpoint.Direct),
		svc:          svc,
		bucket:       u.Host,
		key:          strings.TrimPrefix(u.Path, "/"),
		threads:      u.Threads(conf.Transfer.MaxStreams),
		rangeRetries: conf.Transfer.RangeRetries,
	}
	ep.SetBufHints(0, max(conf.Transfer.BufNum, 2*ep.threads))
	return ep, nil
}

// one client per (endpoint, region)
func client(pool *dpoint.Pool, s3conf *cmn.S3Conf, u *durl.URL) (*awss3.Client, error) {
	var (
		region = cos.Either(u.Option(durl.OptRegion), s3conf.Region)
		base   = s3conf.Endpoint
	)
	if ep := u.Option(durl.OptEndpoint); ep != "" {
		base = "https://" + ep
	}
	obj, err := pool.Load("s3|"+base+"|"+region, func() (any, error) {
		var opts []func(*config.LoadOptions) error
		if s3conf.AccessKey != "" {
			creds := credentials.NewStaticCredentialsProvider(s3conf.AccessKey, s3conf.SecretKey, "")
			opts = append(opts, config.WithCredentialsProvider(creds))
		}
		cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, err
		}
		if base != "" {
			cfg.BaseEndpoint = aws.String(base)
		}
		cfg.Region = cos.Either(region, cos.Either(cfg.Region, defaultRegion))
		return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
			o.UsePathStyle = s3conf.PathStyle
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}), nil
	})
	if err != nil {
		return nil, err
	}
	return obj.(*awss3.Client), nil
}

func (ep *endpoint) Cacheable() bool { return ep.CacheAllowed() }
func (*endpoint) ProvidesMeta() bool { return true }

func (ep *endpoint) name() string { return ep.bucket + "/" + ep.key }

//////////
// meta //
//////////

func (ep *endpoint) head(ctx context.Context) (*dpoint.FileInfo, error) {
	out, err := ep.svc.HeadObject(ctx, &awss3.HeadObjectInput{Bucket: aws.String(ep.bucket), Key: aws.String(ep.key)})
	if err != nil {
		return nil, err
	}
	fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: path.Base(ep.key), Type: dpoint.TypeFile}
	if out.ContentLength != nil {
		fi.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		fi.Created = *out.LastModified
	}
	fi.Cksum = etagCksum(out.ETag)
	return fi, nil
}

// single-part ETag is the MD5 of the content
func etagCksum(etag *string) *cos.Cksum {
	if etag == nil {
		return nil
	}
	v := strings.Trim(*etag, `"`)
	if len(v) != 32 || strings.Contains(v, "-") {
		return nil
	}
	return cos.NewCksum(cos.ChecksumMD5, v)
}

func (ep *endpoint) Stat(ctx context.Context) (*dpoint.FileInfo, error) {
	fi, err := ep.head(ctx)
	if err != nil {
		return nil, awsErr(dstatus.StatError, ep.name(), err)
	}
	ep.Attrs().Merge(&fi.Attrs)
	return fi, nil
}

func (ep *endpoint) Check(ctx context.Context) error {
	if _, err := ep.head(ctx); err != nil {
		return awsErr(dstatus.CheckError, ep.name(), err)
	}
	return nil
}

func (ep *endpoint) Remove(ctx context.Context) error {
	_, err := ep.svc.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: aws.String(ep.bucket), Key: aws.String(ep.key)})
	if err != nil {
		return awsErr(dstatus.DeleteError, ep.name(), err)
	}
	return nil
}

// List: objects under the key taken as a prefix
func (ep *endpoint) List(ctx context.Context) ([]*dpoint.FileInfo, error) {
	var (
		files  []*dpoint.FileInfo
		prefix = ep.key
		params = &awss3.ListObjectsV2Input{Bucket: aws.String(ep.bucket)}
	)
	if prefix != "" {
		params.Prefix = aws.String(prefix)
	}
	paginator := awss3.NewListObjectsV2Paginator(ep.svc, params)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, awsErr(dstatus.ListError, ep.name(), err)
		}
		for _, obj := range page.Contents {
			fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: aws.ToString(obj.Key), Type: dpoint.TypeFile}
			if obj.Size != nil {
				fi.Size = *obj.Size
			}
			if obj.LastModified != nil {
				fi.Created = *obj.LastModified
			}
			fi.Cksum = etagCksum(obj.ETag)
			files = append(files, fi)
		}
	}
	return files, nil
}

func awsErr(code dstatus.Code, name string, err error) error {
	e := dstatus.Newf(code, "%s: %v", name, err)
	var (
		re     *awshttp.ResponseError
		apiErr smithy.APIError
	)
	if errors.As(err, &apiErr) {
		e.Desc = fmt.Sprintf("%s: %s", name, apiErr.ErrorCode())
	}
	if errors.As(err, &re) {
		switch status := re.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			e.Errno = int(syscall.ENOENT)
		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			e.Errno = int(syscall.EACCES)
		case status >= http.StatusInternalServerError:
			e.SetRetryable(true)
		}
	} else if cos.IsRetriableConnErr(err) {
		e.SetRetryable(true)
	}
	return e
}

/////////////
// reading //
/////////////

func (ep *endpoint) StartReading(ctx context.Context, buf *dbuf.Buffer) error {
	if ep.rjob.Running() {
		return dstatus.New(dstatus.ReadStartError, "already reading")
	}
	if !ep.Attrs().HasSize() {
		if _, err := ep.Stat(ctx); err != nil {
			return dstatus.Wrap(dstatus.ReadStartError, err)
		}
	}
	ep.chunks = chunk.New(ep.Attrs().Size)
	ep.rjob.Go(func() error {
		rctx, cancel := dpoint.WithBuffer(ctx, buf)
		defer cancel()
		g, gctx := errgroup.WithContext(rctx)
		for range ep.threads {
			g.Go(func() error { return ep.readWorker(gctx, buf) })
		}
		err := g.Wait()
		if dpoint.Secondary(rctx, buf, err) {
			return nil
		}
		if err == nil && !ep.chunks.Empty() && !buf.HasError() {
			err = fmt.Errorf("%s: incomplete, missing %s", ep.name(), ep.chunks)
		}
		return dpoint.EndRead(buf, err)
	})
	return nil
}

func (ep *endpoint) StopReading() error { return dpoint.StopJob(&ep.rjob, dstatus.ReadStopError) }

func (ep *endpoint) readWorker(ctx context.Context, buf *dbuf.Buffer) error {
	for {
		h, seg, ok := buf.AcquireRead()
		if !ok {
			return nil
		}
		start, length, ok := ep.chunks.Get(int64(len(seg)))
		if !ok {
			buf.ReleaseRead(h, 0, 0)
			return nil
		}
		n, err := ep.getRange(ctx, seg[:length], start)
		if n > 0 {
			ep.chunks.Unclaim(start+int64(n), length-int64(n))
			buf.ReleaseRead(h, int64(n), start)
		} else {
			buf.ReleaseRead(h, 0, 0)
			ep.chunks.Unclaim(start, length)
		}
		if err != nil {
			if !dpoint.Secondary(ctx, buf, err) {
				buf.SetErrRead(err.Error())
			}
			return err
		}
	}
}

func (ep *endpoint) getRange(ctx context.Context, seg []byte, start int64) (n int, err error) {
	rng := fmt.Sprintf("bytes=%d-%d", start, start+int64(len(seg))-1)
	for try := 0; try <= ep.rangeRetries; try++ {
		if try > 0 {
			nlog.Warningln(ep.name(), rng, "retry", try, "after:", err)
		}
		var out *awss3.GetObjectOutput
		out, err = ep.svc.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(ep.bucket),
			Key:    aws.String(ep.key),
			Range:  aws.String(rng),
		})
		if err != nil {
			err = awsErr(dstatus.ReadError, ep.name(), err)
			if !dstatus.IsRetryable(err) || ctx.Err() != nil {
				return 0, err
			}
			continue
		}
		n, err = io.ReadFull(out.Body, seg)
		out.Body.Close()
		if n > 0 || err == nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = nil // shorter than requested: the rest is returned to the allocator
			}
			return n, err
		}
	}
	return 0, err
}

/////////////
// writing //
/////////////

// StartWriting streams the buffer through the multipart-capable uploader
func (ep *endpoint) StartWriting(ctx context.Context, buf *dbuf.Buffer) error {
	if ep.wjob.Running() {
		return dstatus.New(dstatus.WriteStartError, "already writing")
	}
	var (
		pr, pw   = io.Pipe()
		drained  = make(chan error, 1)
		uploader = manager.NewUploader(ep.svc)
	)
	go func() {
		_, err := dpoint.Drain(buf, pw)
		if err == nil && buf.HasError() {
			err = dbuf.ErrAborted
		}
		pw.CloseWithError(err)
		drained <- err
	}()
	wctx, cancel := dpoint.WithBuffer(ctx, buf)
	ep.wjob.Go(func() error {
		defer cancel()
		_, err := uploader.Upload(wctx, &awss3.PutObjectInput{
			Bucket: aws.String(ep.bucket),
			Key:    aws.String(ep.key),
			Body:   pr,
		})
		if dpoint.Secondary(wctx, buf, err) {
			pr.CloseWithError(err)
			<-drained
			return nil
		}
		if err != nil {
			err = awsErr(dstatus.WriteError, ep.name(), err)
			pr.CloseWithError(err)
			if !buf.HasError() {
				buf.SetErrWrite(err.Error())
			}
		}
		errd := <-drained
		if errors.Is(errd, dbuf.ErrAborted) {
			return nil
		}
		if err == nil {
			err = errd
		}
		return dpoint.EndWrite(buf, err)
	})
	return nil
}

func (ep *endpoint) StopWriting() error { return dpoint.StopJob(&ep.wjob, dstatus.WriteStopError) }
