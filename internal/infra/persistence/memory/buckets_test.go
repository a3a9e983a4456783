package memory

import (
	"classroom/pkg/domain"
	"testing"
	"time"
)

func TestSnapshotBucketCodec(t *testing.T) {
	when := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	src := Snapshot{
		Students: map[string]Student{"s1": {Base: domain.Base{ID: "s1", CreatedAt: when}, Name: "Ada"}},
		Classes:  map[string]Class{"c1": {Base: domain.Base{ID: "c1"}, StudentIDs: []string{"s1"}}},
		Exams:    map[string]Exam{"e1": {Base: domain.Base{ID: "e1"}, ClassID: "c1", ScheduledAt: when}},
	}
	var dst Snapshot
	for _, bucket := range Buckets {
		payload, err := src.EncodeBucket(bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		if err := dst.DecodeBucket(bucket, payload); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	if dst.Students["s1"].Name != "Ada" || !dst.Students["s1"].CreatedAt.Equal(when) {
		t.Fatalf("student mismatch: %+v", dst.Students["s1"])
	}
	if dst.Exams["e1"].ClassID != "c1" {
		t.Fatalf("exam mismatch: %+v", dst.Exams["e1"])
	}
	if _, err := src.EncodeBucket("nope"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
	if err := dst.DecodeBucket("legacy", []byte("{")); err != nil {
		t.Fatalf("unknown buckets should be ignored: %v", err)
	}
	if err := dst.DecodeBucket(BucketClasses, []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}
