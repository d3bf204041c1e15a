package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"torrentify/internal/artifact"
)

// S3Service stores artifact folders in Amazon S3 or a compatible API.
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

var _ Service = (*S3Service)(nil)

type localObject struct {
	path string
	rel  string
	size int64
}

// collectFolder lists the regular files under dir accepted by include,
// sorted by relative path.
func collectFolder(dir string, include func(rel string) bool) ([]localObject, error) {
	root := filepath.Clean(dir)
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var objects []localObject
	err = filepath.WalkDir(root, func(name string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if include != nil && !include(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, localObject{path: name, rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].rel < objects[j].rel })
	return objects, nil
}

func (s *S3Service) PutFolder(ctx context.Context, dir string, opts PutOptions) (PutResult, error) {
	if opts.Bucket == "" {
		return PutResult{}, errors.New("storage bucket is required")
	}
	objects, err := collectFolder(dir, opts.Include)
	if err != nil {
		return PutResult{}, err
	}
	if len(objects) == 0 {
		return PutResult{}, fmt.Errorf("nothing to upload in %s", dir)
	}

	prefix := strings.Trim(opts.Prefix, "/")
	if prefix == "" {
		prefix = filepath.Base(filepath.Clean(dir))
	}
	limit := opts.Concurrency
	if limit < 1 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, obj := range objects {
		g.Go(func() error {
			key := path.Join(prefix, obj.rel)
			if err := s.putObject(gctx, opts.Bucket, key, obj.path); err != nil {
				return err
			}
			if opts.OnObject != nil {
				opts.OnObject(key, obj.size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PutResult{}, err
	}

	res := PutResult{Location: fmt.Sprintf("s3://%s/%s", opts.Bucket, prefix), Objects: len(objects)}
	for _, obj := range objects {
		res.Bytes += obj.size
	}
	return res, nil
}

func (s *S3Service) putObject(ctx context.Context, bucket, key, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
		ACL:    types.ObjectCannedACLPrivate,
	}
	if ct := artifact.ContentType(name); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *S3Service) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var out []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}
	}
	return out, nil
}

// DeletePrefix removes every object under prefix and returns how many went.
// Per-key failures reported by the API are joined into the error.
func (s *S3Service) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	if bucket == "" {
		return 0, errors.New("storage bucket is required")
	}
	if strings.Trim(prefix, "/") == "" {
		return 0, errors.New("refusing to delete an empty prefix")
	}

	deleted := 0
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			ids[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete under %s: %w", prefix, err)
		}
		deleted += len(ids) - len(out.Errors)
		if len(out.Errors) > 0 {
			errs := make([]error, len(out.Errors))
			for i, e := range out.Errors {
				errs[i] = fmt.Errorf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
			}
			return deleted, fmt.Errorf("delete under %s: %w", prefix, errors.Join(errs...))
		}
	}
	return deleted, nil
}
