// Package cloud implements the S3-backed StorageAdapter (spec §4.5), the
// S3ConfigStore document (§4.8), and the per-session S3ConnectionRegistry
// (§4.9).
package cloud

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/golang/glog"

	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/storage"
)

// S3Adapter implements storage.Adapter over a single S3-compatible bucket,
// simulating directories via key prefixes (spec §4.5).
type S3Adapter struct {
	svc    *s3.S3
	bucket string
	prefix string // profile-configured key prefix, without leading/trailing "/"
}

var _ storage.Adapter = (*S3Adapter)(nil)

// NewS3Adapter constructs an adapter from a profile, creating a fresh AWS
// session the way the teacher's awsProvider.createSession does.
func NewS3Adapter(profile *S3ConfigProfile) (*S3Adapter, error) {
	cfg := &aws.Config{
		Region:      aws.String(profile.Region),
		Credentials: credentials.NewStaticCredentials(profile.AccessKeyID, profile.SecretAccessKey, ""),
	}
	if profile.Endpoint != "" {
		cfg.Endpoint = aws.String(profile.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigDisable,
	})
	if err != nil {
		return nil, cmn.NewError(cmn.KindUpstream, "s3.connect", profile.ID, err)
	}
	return &S3Adapter{
		svc:    s3.New(sess),
		bucket: profile.Bucket,
		prefix: strings.Trim(profile.Prefix, "/"),
	}, nil
}

// key maps a virtual path to its S3 object key: strip leading/trailing "/",
// prepend the profile's prefix if any.
func (a *S3Adapter) key(virtualPath string) string {
	clean := strings.Trim(virtualPath, "/")
	if a.prefix == "" {
		return clean
	}
	if clean == "" {
		return a.prefix
	}
	return a.prefix + "/" + clean
}

// stripPrefix is key's inverse: maps an object key back to a virtual path.
func (a *S3Adapter) stripPrefix(key string) string {
	rest := key
	if a.prefix != "" {
		rest = strings.TrimPrefix(key, a.prefix+"/")
	}
	return "/" + strings.Trim(rest, "/")
}

func (a *S3Adapter) wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return cmn.NewError(cmn.KindNotFound, op, path, err)
		}
	}
	glog.Errorf("s3: %s %s: %v", op, path, err)
	return cmn.NewError(cmn.KindUpstream, op, path, err)
}

// List issues ListObjectsV2 with the normalized path as Prefix and "/" as
// Delimiter; CommonPrefixes become dir entries (mtime: now, size: 0 — a
// known approximation, spec §9), Contents become file entries. The exact
// prefix placeholder object is excluded.
func (a *S3Adapter) List(ctx context.Context, path string, opts storage.ListOptions) (*storage.ListResult, error) {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return nil, err
	}
	prefix := a.key(normalized)
	if prefix != "" {
		prefix += "/"
	}
	maxKeys := int64(1000)
	if opts.Limit > 0 {
		maxKeys = int64(opts.Limit)
	}

	entries := make([]storage.Entry, 0)
	now := time.Now().UnixMilli()
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int64(maxKeys),
	}
	err = a.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, storage.Entry{Name: name, Type: storage.TypeDir, Size: 0, Mtime: now})
		}
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix { // the exact prefix placeholder object
				continue
			}
			name := strings.TrimPrefix(key, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			entries = append(entries, storage.Entry{
				Name:  name,
				Type:  storage.TypeFile,
				Size:  aws.Int64Value(obj.Size),
				Mtime: obj.LastModified.UnixMilli(),
			})
		}
		return true // enumerate every page so Total reflects the unpaginated count
	})
	if err != nil {
		return nil, a.wrapErr("s3.list", normalized, err)
	}
	storage.SortEntries(entries)
	total := len(entries)
	sliced := entries
	if opts.Offset > 0 {
		if opts.Offset > len(sliced) {
			sliced = nil
		} else {
			sliced = sliced[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(sliced) {
		sliced = sliced[:opts.Limit]
	}
	return &storage.ListResult{Entries: sliced, Total: total}, nil
}

// Stat issues HeadObject first; if absent, it probes ListObjectsV2 with
// Prefix=<key>/ and MaxKeys=1 to detect a simulated directory.
func (a *S3Adapter) Stat(ctx context.Context, path string) (*storage.Entry, error) {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return nil, err
	}
	key := a.key(normalized)
	head, err := a.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err == nil {
		name := name(normalized)
		return &storage.Entry{Name: name, Type: storage.TypeFile, Size: aws.Int64Value(head.ContentLength), Mtime: head.LastModified.UnixMilli()}, nil
	}
	if aerr, ok := err.(awserr.Error); !ok || (aerr.Code() != s3.ErrCodeNoSuchKey && aerr.Code() != "NotFound" && aerr.Code() != "404") {
		return nil, a.wrapErr("s3.stat", normalized, err)
	}

	dirPrefix := key
	if dirPrefix != "" {
		dirPrefix += "/"
	}
	out, err := a.svc.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket), Prefix: aws.String(dirPrefix), MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return nil, a.wrapErr("s3.stat", normalized, err)
	}
	if len(out.Contents) == 0 {
		return nil, nil
	}
	return &storage.Entry{Name: name(normalized), Type: storage.TypeDir, Size: 0, Mtime: time.Now().UnixMilli()}, nil
}

func name(normalized string) string {
	i := strings.LastIndexByte(normalized, '/')
	return normalized[i+1:]
}

// Read streams GetObject's body into a single blob.
func (a *S3Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return nil, err
	}
	out, err := a.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(a.key(normalized))})
	if err != nil {
		return nil, a.wrapErr("s3.read", normalized, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, cmn.NewError(cmn.KindUpstream, "s3.read", normalized, err)
	}
	return data, nil
}

// Write issues PutObject.
func (a *S3Adapter) Write(ctx context.Context, path string, data []byte) error {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return err
	}
	_, err = a.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket), Key: aws.String(a.key(normalized)), Body: bytes.NewReader(data),
	})
	if err != nil {
		return a.wrapErr("s3.write", normalized, err)
	}
	return nil
}

// Delete removes the named object and, if the simulated directory <key>/
// has contents, every object under it — idempotent, a no-op if neither
// exists.
func (a *S3Adapter) Delete(ctx context.Context, path string) error {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return err
	}
	key := a.key(normalized)
	if err := a.deletePrefix(ctx, key+"/"); err != nil {
		return a.wrapErr("s3.delete", normalized, err)
	}
	_, err = a.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return a.wrapErr("s3.delete", normalized, err)
	}
	return nil
}

func (a *S3Adapter) deletePrefix(ctx context.Context, prefix string) error {
	var keys []string
	err := a.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket), Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := a.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(k)}); err != nil {
			return err
		}
	}
	return nil
}

// Move is copy followed by delete(source).
func (a *S3Adapter) Move(ctx context.Context, source, dest string) error {
	if err := a.Copy(ctx, source, dest); err != nil {
		return err
	}
	return a.Delete(ctx, source)
}

// Copy issues a single CopyObject for a plain object. When source resolves
// to a simulated directory (no single object, but members exist under
// <key>/) it enumerates and copies each member, remapping the prefix — the
// policy this implementation picks for the spec's open directory-copy
// question (SPEC_FULL.md §4.5.1).
func (a *S3Adapter) Copy(ctx context.Context, source, dest string) error {
	srcNorm, err := cmn.Normalize(source)
	if err != nil {
		return err
	}
	destNorm, err := cmn.Normalize(dest)
	if err != nil {
		return err
	}
	srcKey, destKey := a.key(srcNorm), a.key(destNorm)

	_, headErr := a.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(srcKey)})
	if headErr == nil {
		return a.copyObject(ctx, srcKey, destKey, srcNorm)
	}

	var keys []string
	srcPrefix := srcKey + "/"
	err = a.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket), Prefix: aws.String(srcPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return a.wrapErr("s3.copy", srcNorm, err)
	}
	if len(keys) == 0 {
		return cmn.NewError(cmn.KindNotFound, "s3.copy", srcNorm, nil)
	}
	for _, k := range keys {
		rel := strings.TrimPrefix(k, srcPrefix)
		if err := a.copyObject(ctx, k, destKey+"/"+rel, srcNorm); err != nil {
			return err
		}
	}
	return nil
}

func (a *S3Adapter) copyObject(ctx context.Context, srcKey, destKey, normalizedForErr string) error {
	_, err := a.svc.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(a.bucket + "/" + srcKey),
		Key:        aws.String(destKey),
	})
	if err != nil {
		return a.wrapErr("s3.copy", normalizedForErr, err)
	}
	return nil
}

// Mkdir writes a zero-byte placeholder at <normalizedKey>/ so the prefix
// becomes discoverable via list().
func (a *S3Adapter) Mkdir(ctx context.Context, path string) error {
	normalized, err := cmn.Normalize(path)
	if err != nil {
		return err
	}
	key := a.key(normalized) + "/"
	_, err = a.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket), Key: aws.String(key), Body: bytes.NewReader(nil),
	})
	if err != nil {
		return a.wrapErr("s3.mkdir", normalized, err)
	}
	return nil
}

// Exists reports whether Stat finds an object or simulated directory.
func (a *S3Adapter) Exists(ctx context.Context, path string) (bool, error) {
	e, err := a.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// GetPublicURL returns a virtual URL referring back to the service's own
// download endpoint — the service mediates all reads, never a pre-signed
// S3 URL (spec §4.5).
func (a *S3Adapter) GetPublicURL(configID, virtualPath string) string {
	return "/api/s3/download?configId=" + configID + "&path=" + urlPathEscape(virtualPath)
}

func urlPathEscape(p string) string {
	var sb strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '/' || c == '-' || c == '_' || c == '.' {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			const hex = "0123456789ABCDEF"
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0xF])
		}
	}
	return sb.String()
}
