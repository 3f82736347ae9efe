package statuscheck

import (
    "context"
    "errors"
    "strings"
    "testing"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type fakeBucket struct {
    err    error
    bucket string
}

func (p *fakeBucket) HeadBucket(ctx context.Context, bucket string) error {
    p.bucket = bucket
    return p.err
}

func fakeLookPath(found ...string) func(string) (string, error) {
    return func(name string) (string, error) {
        for _, f := range found {
            if f == name { return "/usr/bin/" + name, nil }
        }
        return "", errors.New("not found")
    }
}

func TestSummaryAllUp(t *testing.T) {
    s3 := &fakeBucket{}
    c := New(Options{Redis: pinger{}, S3: s3, S3Bucket: "docs", LibreOfficeBinary: "soffice", ViewerBinary: "xdg-open"})
    c.lookPath = fakeLookPath("soffice", "xdg-open")

    sum := c.Summary(context.Background())
    if !sum.Redis.OK || !sum.S3.OK || !sum.LibreOffice.OK || !sum.Viewer.OK {
        t.Fatalf("summary = %+v", sum)
    }
    if s3.bucket != "docs" {
        t.Fatalf("checked bucket %q", s3.bucket)
    }
    if !sum.Healthy() {
        t.Fatal("expected healthy")
    }
}

func TestSummaryDegraded(t *testing.T) {
    c := New(Options{Redis: pinger{err: errors.New(strings.Repeat("x", 300))}})
    c.lookPath = fakeLookPath()

    sum := c.Summary(context.Background())
    if sum.Redis.OK || len(sum.Redis.Message) != 120 {
        t.Fatalf("redis = %+v", sum.Redis)
    }
    if !sum.S3.Disabled || sum.LibreOffice.OK || !sum.Viewer.Disabled {
        t.Fatalf("summary = %+v", sum)
    }
    if sum.Healthy() {
        t.Fatal("redis down must be unhealthy")
    }

    c = New(Options{})
    c.lookPath = fakeLookPath()
    if !c.Summary(context.Background()).Healthy() {
        t.Fatal("unconfigured dependencies are not failures")
    }
}
