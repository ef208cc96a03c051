package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/hashicorp/vault/api"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/spf13/afero"
)

// fakeHDFS serves HDFSClient from an in-memory afero filesystem.
type fakeHDFS struct {
	fs     afero.Fs
	closed bool
}

func newFakeHDFS() *fakeHDFS {
	return &fakeHDFS{fs: afero.NewMemMapFs()}
}

func (f *fakeHDFS) Open(name string) (io.ReadCloser, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *fakeHDFS) Create(name string) (io.WriteCloser, error) {
	file, err := f.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *fakeHDFS) Stat(name string) (os.FileInfo, error) { return f.fs.Stat(name) }
func (f *fakeHDFS) Rename(oldpath, newpath string) error  { return f.fs.Rename(oldpath, newpath) }
func (f *fakeHDFS) Remove(name string) error              { return f.fs.Remove(name) }
func (f *fakeHDFS) MkdirAll(dirname string, perm os.FileMode) error {
	return f.fs.MkdirAll(dirname, perm)
}

func (f *fakeHDFS) Close() error {
	f.closed = true
	return nil
}

// fakeS3 is an in-memory S3API covering the object calls S3FileIO makes.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	buckets map[string]map[string][]byte
	puts    int
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		f.buckets[b] = make(map[string][]byte)
	}
	return f
}

func (f *fakeS3) object(bucket, key *string) ([]byte, error) {
	objects, ok := f.buckets[aws.StringValue(bucket)]
	if !ok {
		return nil, awserr.NewRequestFailure(
			awserr.New(s3.ErrCodeNoSuchBucket, "The specified bucket does not exist", nil), http.StatusNotFound, "req")
	}
	data, ok := objects[aws.StringValue(key)]
	if !ok {
		return nil, awserr.NewRequestFailure(
			awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil), http.StatusNotFound, "req")
	}
	return data, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.object(in.Bucket, in.Key)
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.object(in.Bucket, in.Key)
	if err != nil {
		// HEAD responses carry no body, so S3 reports a bare NotFound code.
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "req")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.buckets[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.NewRequestFailure(
			awserr.New(s3.ErrCodeNoSuchBucket, "The specified bucket does not exist", nil), http.StatusNotFound, "req")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	objects[aws.StringValue(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.buckets[aws.StringValue(in.Bucket)]
	if !ok {
		return nil, awserr.NewRequestFailure(
			awserr.New(s3.ErrCodeNoSuchBucket, "The specified bucket does not exist", nil), http.StatusNotFound, "req")
	}
	delete(objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// fakeIPFS is an in-memory MFS tree.
type fakeIPFS struct {
	mu      sync.Mutex
	entries map[string]*mfsEntry
}

type mfsEntry struct {
	dir  bool
	data []byte
}

func newFakeIPFS() *fakeIPFS {
	return &fakeIPFS{entries: map[string]*mfsEntry{"/": {dir: true}}}
}

func mfsNotFound(p string) error {
	return &shell.Error{Command: "files", Message: fmt.Sprintf("file does not exist: %s", p)}
}

func (f *fakeIPFS) mkdirAll(p string) error {
	if e, ok := f.entries[p]; ok {
		if !e.dir {
			return &shell.Error{Command: "files/mkdir", Message: p + " is not a directory"}
		}
		return nil
	}
	if p != "/" {
		if err := f.mkdirAll(path.Dir(p)); err != nil {
			return err
		}
	}
	f.entries[p] = &mfsEntry{dir: true}
	return nil
}

func (f *fakeIPFS) FilesRead(_ context.Context, p string, _ ...shell.FilesOpt) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[p]
	if !ok {
		return nil, mfsNotFound(p)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), e.data...))), nil
}

// FilesWrite always behaves as with create, parents and truncate set.
func (f *fakeIPFS) FilesWrite(_ context.Context, p string, data io.Reader, _ ...shell.FilesOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mkdirAll(path.Dir(p)); err != nil {
		return err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.entries[p] = &mfsEntry{data: b}
	return nil
}

func (f *fakeIPFS) FilesStat(_ context.Context, p string, _ ...shell.FilesOpt) (*shell.FilesStatObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[p]
	if !ok {
		return nil, mfsNotFound(p)
	}
	if e.dir {
		return &shell.FilesStatObject{Type: "directory"}, nil
	}
	return &shell.FilesStatObject{Type: "file", Size: uint64(len(e.data))}, nil
}

func (f *fakeIPFS) FilesMkdir(_ context.Context, p string, _ ...shell.FilesOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mkdirAll(p)
}

func (f *fakeIPFS) FilesMv(_ context.Context, src, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[src]
	if !ok {
		return mfsNotFound(src)
	}
	if _, exists := f.entries[dest]; exists {
		return &shell.Error{Command: "files/mv", Message: "directory already has entry by that name"}
	}
	delete(f.entries, src)
	f.entries[dest] = e
	return nil
}

func (f *fakeIPFS) FilesRm(_ context.Context, p string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[p]
	if !ok {
		return mfsNotFound(p)
	}
	if e.dir && !force {
		return &shell.Error{Command: "files/rm", Message: p + " is a directory, use -r to remove directories"}
	}
	delete(f.entries, p)
	return nil
}

func (f *fakeIPFS) exists(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[p]
	return ok
}

// fakeVault is an in-memory KV v2 engine reached through the logical API.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[string]map[string]interface{})}
}

// splitKV turns "mount/data/a/b" into ("mount/a/b", "data").
func splitKV(p string) (string, string) {
	parts := strings.SplitN(p, "/", 3)
	if len(parts) < 3 {
		return p, ""
	}
	return parts[0] + "/" + parts[2], parts[1]
}

func (f *fakeVault) ReadWithContext(_ context.Context, p string) (*api.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, _ := splitKV(p)
	fields, ok := f.secrets[key]
	if !ok {
		return nil, nil
	}
	return &api.Secret{Data: map[string]interface{}{"data": fields, "metadata": map[string]interface{}{"version": 1}}}, nil
}

func (f *fakeVault) WriteWithContext(_ context.Context, p string, data map[string]interface{}) (*api.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, _ := splitKV(p)
	if opts, ok := data["options"].(map[string]interface{}); ok {
		if cas, ok := opts["cas"].(int); ok && cas == 0 {
			if _, exists := f.secrets[key]; exists {
				return nil, &api.ResponseError{
					HTTPMethod: http.MethodPut,
					StatusCode: http.StatusBadRequest,
					Errors:     []string{"check-and-set parameter did not match the current version"},
				}
			}
		}
	}
	fields, _ := data["data"].(map[string]interface{})
	f.secrets[key] = fields
	return &api.Secret{}, nil
}

func (f *fakeVault) DeleteWithContext(_ context.Context, p string) (*api.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, _ := splitKV(p)
	delete(f.secrets, key)
	return nil, nil
}

func (f *fakeVault) ListWithContext(_ context.Context, p string) (*api.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix, _ := splitKV(p)
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	seen := make(map[string]bool)
	for key := range f.secrets {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = true
	}
	if len(seen) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return &api.Secret{Data: map[string]interface{}{"keys": out}}, nil
}
